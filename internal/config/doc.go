// Package config provides configuration parsing for the pomelo command.
//
// The configuration is stored in pomelo.json, found in the working directory
// or one of its parents. Every field can be overridden by a command-line flag.
//
// # Configuration File Structure
//
//	{
//	  "host": "127.0.0.1",
//	  "port": 3010,
//	  "transport": "ws",
//	  "timeout": "10s",
//	  "reconnect": {
//	    "enabled": true,
//	    "maxAttempts": 10,
//	    "baseDelay": "5s",
//	    "maxDelay": "1m"
//	  },
//	  "client": {
//	    "type": "go-websocket",
//	    "version": "0.0.1",
//	    "user": {"token": "..."}
//	  },
//	  "heartbeat": {"gapThreshold": "100ms"},
//	  "rateLimit": 50,
//	  "metrics": {"addr": ":9090"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("URL:", cfg.URL())
package config
