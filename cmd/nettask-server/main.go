// Command nettask-server runs the NetTask server peer: it accepts
// WebSocket connections, drives each one through the registration
// handshake, and then services PushSchemas/SendMetrics traffic for the
// resulting Established session.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nettask-project/nettask/config"
	"github.com/nettask-project/nettask/internal/logger"
	"github.com/nettask-project/nettask/internal/metrics"
	"github.com/nettask-project/nettask/pkg/datagram"
	"github.com/nettask-project/nettask/pkg/ecdhe"
	"github.com/nettask-project/nettask/pkg/session"
	"github.com/nettask-project/nettask/pkg/spack"
	"github.com/nettask-project/nettask/pkg/transport"
)

var (
	configDir string
	log       = logger.NewDefaultLogger()
)

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(fmt.Sprintf("nettask-server: read random bytes: %v", err))
	}
	return b
}

func main() {
	root := &cobra.Command{
		Use:   "nettask-server",
		Short: "Run the NetTask registration and metrics server",
		RunE:  runServer,
	}
	root.Flags().StringVar(&configDir, "config-dir", "", "directory containing <environment>.yaml (optional, default: config)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	presharedSecret, err := loadPresharedSecret(cfg.PreSharedSecretPath)
	if err != nil {
		return err
	}

	sessions := session.NewManager(cfg.Session)
	defer sessions.Stop()

	metrics.RegisterHealthCheck("session_manager", sessions.Healthy)
	metrics.RegisterHealthCheck("preshared_secret", func() error {
		if len(presharedSecret) == 0 {
			return fmt.Errorf("preshared secret not loaded")
		}
		return nil
	})

	descriptors := map[string]spack.TaskSchema{}

	if cfg.Metrics.Enabled {
		go func() {
			log.Info("starting metrics server", logger.String("addr", cfg.Metrics.Addr))
			if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
				log.Error("metrics server stopped", logger.Error(err))
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/nettask", func(w http.ResponseWriter, r *http.Request) {
		handleConnection(w, r, cfg, presharedSecret, sessions, descriptors)
	})

	log.Info("nettask-server listening", logger.String("addr", cfg.ListenAddr))
	return http.ListenAndServe(cfg.ListenAddr, mux)
}

// handleConnection drives one peer through the registration handshake
// and, on success, into serviceEstablishedSession. HandshakesInitiated/
// Completed/Failed and the per-phase HandshakeDuration are recorded
// here since this is the one place the whole handshake lifetime is
// visible; CryptoOperations is recorded around each ecdhe call.
func handleConnection(w http.ResponseWriter, r *http.Request, cfg *config.Config, psk []byte, sessions *session.Manager, descriptors map[string]spack.TaskSchema) {
	conn, err := transport.Upgrade(w, r)
	if err != nil {
		log.Warn("websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	ctx := context.Background()
	state := datagram.NewServerSession()
	start := time.Now()

	metrics.HandshakesInitiated.WithLabelValues(datagram.RoleServer.String()).Inc()

	frame, err := conn.Receive(ctx)
	if err != nil {
		log.Warn("receive failed", logger.Error(err))
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return
	}

	got, err := deserializeTimed(frame, cfg.HashLen, nil, nil)
	if err != nil {
		metrics.DatagramsRejected.WithLabelValues(rejectionReason(err)).Inc()
		failHandshake(err)
		log.Warn("dropped frame", logger.Error(err))
		return
	}
	reqReg, ok := got.(*datagram.RequestRegister)
	if !ok || state.OnReceive(datagram.TypeRequestRegister) != nil {
		failHandshake(datagram.ErrWrongType)
		sendReject(ctx, conn, state)
		return
	}

	serverKeys, err := ecdhe.GenerateKeyPair()
	metrics.CryptoOperations.WithLabelValues("generate_key_pair", cryptoResult(err)).Inc()
	if err != nil {
		log.Error("key generation failed", logger.Error(err))
		failHandshake(err)
		sendReject(ctx, conn, state)
		return
	}

	sid := ecdhe.ComputeSessionID(reqReg.PublicKey, serverKeys.PublicKey(), psk, cfg.HashLen)
	state.SessionID = sid
	challenge := randomBytes(32)
	salt := randomBytes(16)

	err = serverKeys.DeriveSharedSecret(reqReg.PublicKey, salt, challenge, psk)
	metrics.CryptoOperations.WithLabelValues("derive_shared_secret", cryptoResult(err)).Inc()
	if err != nil {
		log.Error("derive shared secret failed", logger.Error(err))
		failHandshake(err)
		sendReject(ctx, conn, state)
		return
	}
	state.Session = serverKeys

	if err := state.OnSend(datagram.TypeRegisterChallenge); err != nil {
		failHandshake(err)
		sendReject(ctx, conn, state)
		return
	}
	challengeMsg := &datagram.RegisterChallenge{
		Header:    datagram.Header{SessionID: sid},
		PublicKey: serverKeys.PublicKey(),
		Challenge: challenge,
		Salt:      salt,
	}
	wire, err := challengeMsg.Serialize()
	if err != nil {
		log.Error("serialize RegisterChallenge failed", logger.Error(err))
		failHandshake(err)
		return
	}
	if err := conn.Send(ctx, wire); err != nil {
		log.Warn("send failed", logger.Error(err))
		failHandshake(err)
		return
	}
	metrics.HandshakeDuration.WithLabelValues(datagram.PhaseAwaitChallenge.String()).Observe(time.Since(start).Seconds())

	frame, err = conn.Receive(ctx)
	if err != nil {
		log.Warn("receive failed", logger.Error(err))
		failHandshake(err)
		return
	}
	got, err = deserializeTimed(frame, cfg.HashLen, nil, nil)
	if err != nil {
		metrics.DatagramsRejected.WithLabelValues(rejectionReason(err)).Inc()
		failHandshake(err)
		sendReject(ctx, conn, state)
		return
	}
	reg2, ok := got.(*datagram.RegisterChallenge2)
	verified := ok && serverKeys.VerifyChallengeResponse(challenge, reg2.ChallengeResponse)
	metrics.CryptoOperations.WithLabelValues("verify_challenge_response", cryptoResult(boolErr(verified))).Inc()
	if !verified {
		failHandshake(datagram.ErrCryptoFailure)
		sendReject(ctx, conn, state)
		return
	}
	if err := state.OnReceive(datagram.TypeRegisterChallenge2); err != nil {
		failHandshake(err)
		sendReject(ctx, conn, state)
		return
	}
	metrics.HandshakeDuration.WithLabelValues(datagram.PhaseAwaitChallenge2.String()).Observe(time.Since(start).Seconds())

	sessions.Create(state)
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	log.Info("session established", logger.SessionID(sid), logger.Phase(state.Phase))

	serviceEstablishedSession(ctx, conn, cfg, state, sessions, descriptors)
}

// failHandshake records a failed-handshake outcome labeled by the
// §7 reason err maps to (rejectionReason, the same mapping
// DatagramsRejected uses). Errors outside the datagram sentinels, such
// as transport or key-generation failures, fall into rejectionReason's
// default label, malformed_payload.
func failHandshake(err error) {
	metrics.HandshakesFailed.WithLabelValues(rejectionReason(err)).Inc()
	metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
}

func cryptoResult(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func boolErr(ok bool) error {
	if ok {
		return nil
	}
	return datagram.ErrCryptoFailure
}

// deserializeTimed wraps datagram.Deserialize with DatagramProcessingDuration.
func deserializeTimed(frame []byte, hashLen int, sess *ecdhe.Session, descriptors map[string]spack.TaskSchema) (datagram.Datagram, error) {
	start := time.Now()
	d, err := datagram.Deserialize(frame, hashLen, sess, descriptors)
	if err == nil {
		metrics.DatagramProcessingDuration.WithLabelValues(d.Type().String()).Observe(time.Since(start).Seconds())
	}
	return d, err
}

func serviceEstablishedSession(ctx context.Context, conn *transport.WebSocketTransport, cfg *config.Config, state *datagram.SessionState, sessions *session.Manager, descriptors map[string]spack.TaskSchema) {
	defer sessions.Close(state.SessionID)

	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			return
		}
		if !sessions.Touch(state.SessionID, len(frame)) {
			log.Warn("session message budget exhausted", logger.SessionID(state.SessionID))
			return
		}

		got, err := deserializeTimed(frame, cfg.HashLen, state.Session, descriptors)
		if err != nil {
			metrics.DatagramsRejected.WithLabelValues(rejectionReason(err)).Inc()
			log.Warn("dropped frame", logger.Error(err))
			continue
		}

		switch d := got.(type) {
		case *datagram.PushSchemas:
			if schemas, ok := d.Schemas.(map[string]spack.TaskSchema); ok {
				for name, schema := range schemas {
					descriptors[name] = schema
				}
			}
			log.Info("schemas pushed", logger.DatagramType(d.Type()), logger.SessionID(state.SessionID))
		case *datagram.SendMetrics:
			log.Info("metric received", logger.String("taskId", d.TaskID), logger.DatagramType(d.Type()))
		case *datagram.ConnectionRejected:
			return
		}
	}
}

func sendReject(ctx context.Context, conn *transport.WebSocketTransport, state *datagram.SessionState) {
	state.Reject()
	rej := &datagram.ConnectionRejected{Header: datagram.Header{SessionID: state.SessionID}}
	wire, err := rej.Serialize()
	if err != nil {
		return
	}
	_ = conn.Send(ctx, wire)
}

func rejectionReason(err error) string {
	switch {
	case err == datagram.ErrInvalidSignature:
		return "invalid_signature"
	case err == datagram.ErrTruncatedFrame:
		return "truncated_frame"
	case err == datagram.ErrInvalidCryptoMark:
		return "invalid_crypto_mark"
	case err == datagram.ErrInvalidVersion:
		return "invalid_version"
	case err == datagram.ErrWrongType:
		return "wrong_type"
	case err == datagram.ErrCryptoFailure:
		return "crypto_failure"
	case err == datagram.ErrUnknownTask:
		return "unknown_task"
	case err == datagram.ErrNotLinked:
		return "not_linked"
	default:
		return "malformed_payload"
	}
}

func loadConfig() (*config.Config, error) {
	opts := config.DefaultLoaderOptions()
	if configDir != "" {
		opts.ConfigDir = configDir
	}
	return config.Load(opts)
}

func loadPresharedSecret(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("nettask-server: preSharedSecretPath is not configured")
	}
	return os.ReadFile(path)
}
