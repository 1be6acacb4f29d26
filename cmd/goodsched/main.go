package main

import "github.com/example/goods-scheduler/cmd"

func main() {
	cmd.Execute()
}
