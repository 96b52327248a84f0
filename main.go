package main

import "github.com/AzielCF/az-grouppost/cmd"

func main() {
	cmd.Execute()
}
