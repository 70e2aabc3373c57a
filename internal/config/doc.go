// Package config provides configuration loading for replicad nodes.
//
// Configuration is read from an optional replicad.json file and then
// overridden by REPLICAD_* environment variables.
//
// # Configuration File Structure
//
//	{
//	  "name": "node-a",
//	  "listen": ":7700",
//	  "peers": ["ws://node-b:7700/ws"],
//	  "tick": "16ms",
//	  "log": {"level": "info", "format": "json"},
//	  "demo": {"radius": 5, "speed": 0.5, "origin": [0, 0, 0]},
//	  "tuning": {"nearDistance": 15, "farDistance": 150},
//	  "recording": {"bucket": "recordings", "prefix": "replicad/", "interval": "30s"}
//	}
//
// # Environment
//
//	REPLICAD_NAME, REPLICAD_LISTEN, REPLICAD_PEERS (comma separated),
//	REPLICAD_PRIMARY, REPLICAD_TICK, REPLICAD_LOG_LEVEL, REPLICAD_LOG_FORMAT,
//	REPLICAD_DEMO_RADIUS, REPLICAD_DEMO_SPEED, REPLICAD_TUNING_*,
//	REPLICAD_RECORD_DIR, REPLICAD_RECORD_BUCKET, REPLICAD_RECORD_PREFIX,
//	REPLICAD_RECORD_REGION, REPLICAD_RECORD_ENDPOINT, REPLICAD_RECORD_INTERVAL,
//	REPLICAD_RECORD_ACCESS_KEY, REPLICAD_RECORD_SECRET_KEY
//
// # Usage
//
//	cfg, err := config.Load("replicad.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listen:", cfg.Listen)
package config
