package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicnear/libs/config"
	"github.com/md-rashed-zaman/clinicnear/libs/grpcx"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	var (
		addr    = flag.String("addr", config.String("GRPC_ADDR", "localhost:9093"), "grpc address")
		service = flag.String("service", "", "service name to check; empty checks the server")
		timeout = flag.Duration("timeout", 3*time.Second, "probe timeout")
	)
	flag.Parse()

	conn, err := grpcx.Dial(*addr, grpcx.DialOptions{})
	if err != nil {
		fatal(err.Error())
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: *service})
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("status=%s\n", resp.GetStatus())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		os.Exit(1)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
