package main

import "time"

type Config struct {
	Host                string        `env:"HOST,default=localhost"`
	Port                int           `env:"PORT,default=8080"`
	BadgerFilepath      string        `env:"BADGER_FILEPATH,required=true"`
	JWTSecret           string        `env:"JWT_SECRET,required=true"`
	SinkBufferSize      int           `env:"SINK_BUFFER_SIZE,default=64"`
	TelemetryBufferSize int           `env:"TELEMETRY_BUFFER_SIZE,default=256"`
	MetricInterval      time.Duration `env:"METRIC_INTERVAL,default=10s"`
	LogLevel            string        `env:"LOG_LEVEL,default=info"`
}
