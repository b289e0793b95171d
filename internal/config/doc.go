// Package config provides configuration parsing for the gateway binary.
//
// The configuration is stored in gateway.json in the working directory.
// Every key is optional; a missing file is the same as an empty one.
//
// # Configuration File Structure
//
//	{
//	  "host": "0.0.0.0",
//	  "port": 8888,
//	  "serverIdentity": "Simple Web server",
//	  "app": "s3",
//	  "recoverPanics": true,
//	  "log": {
//	    "level": "info",
//	    "format": "json"
//	  },
//	  "admin": {
//	    "enabled": true,
//	    "address": "127.0.0.1:9090"
//	  },
//	  "s3": {
//	    "bucket": "site",
//	    "prefix": "public/",
//	    "region": "us-east-1",
//	    "endpoint": "http://localhost:9000",
//	    "usePathStyle": true
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
