//go:build !purego && !js

package main

const imagingBackend = "opencv"
