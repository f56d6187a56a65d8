package childproc

// Version is the release version of childproc.
const Version = "0.3.0"
