//go:build !linux

package utils

func RaiseFileLimit() {}
