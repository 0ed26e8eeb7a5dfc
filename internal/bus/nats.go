package bus

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ggufchat/chat-engine/pkg/logger"
)

// SubjectPrefix is the prefix for all session event subjects.
const SubjectPrefix = "chat"

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// NATS publishes session events to a NATS broker so external presentation
// layers can subscribe without holding a connection into this process.
type NATS struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// ConnectNATS establishes a connection to the broker and returns a Notifier
// backed by it.
func ConnectNATS(cfg NATSConfig, log *logger.Logger) (*NATS, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATS{conn: nc, logger: log}, nil
}

// EventSubject returns the subject an event is published on.
func EventSubject(userID, conversationID string, t EventType) string {
	if userID == "" {
		userID = "guest"
	}
	if conversationID == "" {
		conversationID = "_"
	}
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, userID, conversationID, t)
}

// Publish sends the event to the broker. Failures are logged, never
// propagated; notification is best-effort by contract.
func (n *NATS) Publish(ev Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	subject := EventSubject(ev.UserID, ev.ConversationID, ev.Type)
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Warn("failed to publish event",
			zap.String("subject", subject), zap.Error(err))
	}
}

// IsConnected reports whether the broker connection is up.
func (n *NATS) IsConnected() bool {
	return n.conn != nil && n.conn.IsConnected()
}

// Close closes the broker connection.
func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
