package neomigrate

// Version is the semantic version of the library and the CLI.
var Version = "v0.1.0"
