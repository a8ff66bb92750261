// Command ricsd is the RICS routing daemon: it loads a config file, binds
// its listener endpoints, and forwards packets between connected nodes
// until terminated or asked to quit via a DAEMON_QUIT request.
package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/atsika/rics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	canBroadcast := flag.Bool("can-broadcast", false, "enable CAN broadcast on startup")
	canDropChance := flag.Float64("can-drop-chance", 0, "CAN frame drop probability in [0,1] on startup")
	flag.Parse()

	cfg, err := rics.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("ricsd: %v", err)
	}

	opts := cfg.Options()
	if *canBroadcast {
		opts = append(opts, rics.WithCanBroadcast(true))
	}
	if *canDropChance != 0 {
		opts = append(opts, rics.WithCanDropChance(float32(*canDropChance)))
	}

	if *metricsAddr != "" {
		metrics := rics.NewPrometheusMetrics(prometheus.DefaultRegisterer)
		opts = append(opts, rics.WithMetrics(metrics))
		go serveMetrics(*metricsAddr)
	}

	server := rics.NewServer(opts...)

	log.Printf("ricsd: listening")
	if err := server.Serve(); err != nil {
		log.Fatalf("ricsd: %v", err)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("ricsd: metrics server: %v", err)
	}
}
