package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vikstrand/protoharbor/internal/chat"
	"github.com/vikstrand/protoharbor/internal/cipher"
	"github.com/vikstrand/protoharbor/internal/jobqueue"
	"github.com/vikstrand/protoharbor/internal/lrcp"
	"github.com/vikstrand/protoharbor/internal/obslog"
	"github.com/vikstrand/protoharbor/internal/obsmetrics"
	"github.com/vikstrand/protoharbor/internal/pest"
	"github.com/vikstrand/protoharbor/internal/speed"
	"github.com/vikstrand/protoharbor/internal/transport"
	"github.com/vikstrand/protoharbor/internal/vcs"
)

// metricsLogInterval is how often a running server logs a connection
// metrics snapshot.
const metricsLogInterval = 30 * time.Second

var serverNames = map[int]string{
	1: "chat",
	2: "speed",
	3: "lrcp",
	4: "jobqueue",
	5: "vcs",
	6: "pest",
	7: "cipher",
}

func main() {
	var host string
	var port int
	var authorityAddr string

	root := &cobra.Command{
		Use:   "protoharbor",
		Short: "runs one of the protocol servers by numeric selector",
	}

	serveCmd := &cobra.Command{
		Use:   "serve <n>",
		Short: "start server n (1=chat 2=speed 3=lrcp 4=jobqueue 5=vcs 6=pest 7=cipher)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrap(err, "invalid server selector")
			}
			name, ok := serverNames[n]
			if !ok {
				return fmt.Errorf("invalid server selector: %d", n)
			}
			return runServer(name, host, port, authorityAddr)
		},
	}
	serveCmd.Flags().StringVar(&host, "host", "0.0.0.0", "address to bind")
	serveCmd.Flags().IntVar(&port, "port", 0, "port to bind")
	serveCmd.Flags().StringVar(&authorityAddr, "authority-addr", pest.DefaultAuthorityAddr, "pest-control authority endpoint (server 6 only)")

	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(name, host string, port int, authorityAddr string) error {
	log := obslog.New(name)
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch name {
	case "lrcp":
		pc, err := net.ListenPacket("udp", addr)
		if err != nil {
			return errors.Wrap(err, "listen udp")
		}
		defer pc.Close()
		srv := lrcp.New(log)
		log.WithField("addr", pc.LocalAddr().String()).Info("listening")
		return transport.ServeUDP(ctx, pc, log, srv.MaxDatagramSize(), srv.Handle)
	default:
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.Wrap(err, "listen tcp")
		}
		defer l.Close()
		log.WithField("addr", l.Addr().String()).Info("listening")

		var handle transport.ConnHandler
		switch name {
		case "chat":
			handle = chat.New(log).Handle
		case "speed":
			handle = speed.New(log).Handle
		case "jobqueue":
			handle = jobqueue.NewServer(log).Handle
		case "vcs":
			handle = vcs.New(log).Handle
		case "pest":
			handle = pest.New(log, pest.WithAuthorityAddr(authorityAddr)).Handle
		case "cipher":
			handle = cipher.New(log).Handle
		default:
			return fmt.Errorf("invalid server selector: %s", name)
		}

		metrics := obsmetrics.New()
		wrapped := func(ctx context.Context, c net.Conn) {
			handle(ctx, obsmetrics.WrapConn(c, metrics))
		}

		stopMetricsLog := logMetricsPeriodically(ctx, log, metrics)
		defer stopMetricsLog()

		return transport.Serve(ctx, l, log, wrapped)
	}
}

// logMetricsPeriodically logs a connection metrics snapshot every
// metricsLogInterval, and once more when ctx is cancelled, until the
// returned stop function has waited for that final log line.
func logMetricsPeriodically(ctx context.Context, log *logrus.Entry, m *obsmetrics.Metrics) (stop func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(metricsLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logMetricsSnapshot(log, m)
				return
			case <-ticker.C:
				logMetricsSnapshot(log, m)
			}
		}
	}()
	return func() { <-done }
}

func logMetricsSnapshot(log *logrus.Entry, m *obsmetrics.Metrics) {
	log.WithFields(logrus.Fields{
		"connections_accepted": m.ConnectionsAccepted(),
		"bytes_sent":           m.BytesSent(),
		"bytes_received":       m.BytesReceived(),
		"write_errors":         m.WriteErrors(),
	}).Info("connection metrics")
}
