package main

import "github.com/sahana-project/ewaste-api/cmd"

func main() {
	cmd.Execute()
}
