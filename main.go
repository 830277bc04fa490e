package main

import "reportpush/cmd"

func main() {
	cmd.Execute()
}
