// cmd/cam-recorder/main.go
package main

func main() {
	Execute()
}
