package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"trust-pool/pkg/adapters"
	"trust-pool/pkg/api"
	"trust-pool/pkg/db"
	"trust-pool/pkg/scheduler"
	"trust-pool/pkg/store"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	token := flag.String("token", "", "bootstrap auth token (optional)")
	storeType := flag.String("store", "memory", "store backend: memory|mysql|sqlite|consul (consul requires build tag consul)")
	consulAddr := flag.String("consul-addr", "127.0.0.1:8500", "consul address (when store=consul)")
	sqlitePath := flag.String("sqlite-path", "/var/lib/trust-pool/state.db", "sqlite file path (when store=sqlite)")
	tick := flag.Int("tick", 10, "scheduling loop tick in seconds")
	attestationServer := flag.String("attestation-server", "", "attestation service base URL for the baseline check")
	heartbeatPort := flag.Int("heartbeat-port", 9411, "agent port probed by the heartbeat check")
	tlsCert := flag.String("tls-cert", "", "TLS cert path (enables HTTPS if set with --tls-key)")
	tlsKey := flag.String("tls-key", "", "TLS key path (enables HTTPS if set with --tls-cert)")
	clientCA := flag.String("client-ca", "", "require and verify client certs using this CA (optional)")
	lockKey := flag.String("lock-key", "trust-pool/locks/leader", "Consul lock key for leader election")
	flag.Parse()

	var (
		st      store.Store
		authAPI *api.AuthHandler
	)
	switch *storeType {
	case "mysql":
		gdb, err := db.Init()
		if err != nil {
			log.Fatalf("mysql init failed: %v", err)
		}
		st = store.NewGormStore(gdb)
		authAPI = &api.AuthHandler{DB: gdb}
	case "sqlite":
		s, err := store.NewSQLiteStore(*sqlitePath)
		if err != nil {
			log.Fatalf("sqlite init failed: %v", err)
		}
		st = s
	case "consul":
		st = store.NewConsulStore(*consulAddr)
	case "memory":
		st = store.NewMemoryStore()
	default:
		log.Fatalf("unsupported store type: %s", *storeType)
	}

	reg := adapters.NewRegistry()
	if *attestationServer != "" {
		reg.Register(adapters.AttestationName, adapters.NewAttestationFactory(*attestationServer))
	}
	// Probe the address a node registered with, when it has one.
	resolveAddr := func(host string) string {
		nodes, err := st.NodeGetAll()
		if err != nil {
			return ""
		}
		for _, n := range nodes {
			if n.Host == host {
				return n.Addr
			}
		}
		return ""
	}
	reg.Register(adapters.HeartbeatName, adapters.NewHeartbeatFactory(*heartbeatPort, resolveAddr))

	sched, err := scheduler.New(st, reg, time.Duration(*tick)*time.Second)
	if err != nil {
		log.Fatalf("scheduler init failed: %v", err)
	}

	hub := api.NewHub()
	sched.SetPublisher(hub.Publish)

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, sched, st, *token)
	api.RegisterNodeRoutes(mux, sched, st, *token)
	mux.HandleFunc("/api/v1/ws", hub.HandleSubscribe)
	if authAPI != nil {
		authAPI.RegisterRoutes(mux)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if lg, ok := st.(interface {
		LeaderGuard(context.Context, string, time.Duration, func(context.Context))
	}); ok && *storeType == "consul" {
		go lg.LeaderGuard(ctx, *lockKey, 15*time.Second, func(lctx context.Context) {
			log.Printf("leader acquired lock %s; driving scheduling loop", *lockKey)
			sched.Start(lctx)
			<-lctx.Done()
			log.Printf("leader lost lock %s", *lockKey)
		})
	} else {
		sched.Start(ctx)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("scheduler listening on %s", *addr)
	if *tlsCert != "" && *tlsKey != "" {
		if *clientCA != "" {
			cfg, errTLS := api.ServerTLSConfig(*tlsCert, *tlsKey, *clientCA)
			if errTLS != nil {
				log.Fatalf("failed to build TLS config: %v", errTLS)
			}
			srv.TLSConfig = cfg
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		}
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
}
