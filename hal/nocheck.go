//go:build halnocheck

package hal

const typeCheck = false
