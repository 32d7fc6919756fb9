// Package main implements the budgetml CLI tool.
// It provisions and tears down cheap GCP serving deployments.
package main

import "github.com/budgetml/budgetml/cmd/budgetml/cmd"

func main() {
	cmd.Execute()
}
