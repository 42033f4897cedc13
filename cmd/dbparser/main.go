// Command dbparser introspects a MySQL schema and serves the cached table
// model over HTTP or prints it from the command line.
package main

func main() {
	execute()
}
