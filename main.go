package main

import "github.com/andresmejia3/roitrack/cmd"

func main() {
	cmd.Execute()
}
