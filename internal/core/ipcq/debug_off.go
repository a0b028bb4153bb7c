//go:build !ipcqdebug

package ipcq

const debugChecks = false
