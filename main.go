// The main package for the course-archiver executable.
package main

import "github.com/JakeFAU/course-archiver/cmd"

func main() {
	cmd.Execute()
}
