package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-l string   gRPC health bind address ("" disables)
//	-k string   store backend: s3, postgres or memory
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-o string   operator passcode (plain or bcrypt hash)
//	-t int      session validity, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-f string   target folder name
//	-n int      listing page size
//	-m int      max upload size, bytes
//	-x string   allowed CORS origin
//
// os.Args is first filtered with flagx.FilterArgs so flags owned by other
// components do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-l", "-k", "-d", "-s", "-o", "-t", "-u", "-p", "-b", "-g", "-e", "-f", "-n", "-m", "-x",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.EndpointAddrHealth, "l", config.EndpointAddrHealth, "address and port of the gRPC health service")
	fs.StringVar(&config.StoreBackend, "k", config.StoreBackend, "store backend (s3, postgres, memory)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.OperatorPasscode, "o", config.OperatorPasscode, "operator passcode or its bcrypt hash")

	sessionValidity := fs.Int("t", int(config.SessionValidityDuration.Minutes()), "session_validity_duration (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.TargetFolderName, "f", config.TargetFolderName, "target folder name")
	fs.IntVar(&config.ListPageSize, "n", config.ListPageSize, "listing page size")
	fs.Int64Var(&config.MaxUploadBytes, "m", config.MaxUploadBytes, "max upload size in bytes")
	fs.StringVar(&config.AllowedOrigin, "x", config.AllowedOrigin, "allowed CORS origin")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionValidityDuration = time.Duration(*sessionValidity) * time.Minute
}
