package main

import "github.com/permesh/permesh/cmd/permesh"

func main() {
	permesh.Execute()
}
