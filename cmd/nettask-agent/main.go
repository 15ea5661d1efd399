// Command nettask-agent drives the initiating side of the NetTask
// handshake against a server, then pushes a demo task schema and sends
// one metric for it over the resulting Established session.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nettask-project/nettask/config"
	"github.com/nettask-project/nettask/internal/logger"
	"github.com/nettask-project/nettask/internal/metrics"
	"github.com/nettask-project/nettask/pkg/datagram"
	"github.com/nettask-project/nettask/pkg/ecdhe"
	"github.com/nettask-project/nettask/pkg/spack"
	"github.com/nettask-project/nettask/pkg/transport"
)

func cryptoResult(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
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

var (
	serverAddr string
	configDir  string
	log        = logger.NewDefaultLogger()
)

func main() {
	root := &cobra.Command{
		Use:   "nettask-agent",
		Short: "Register with a NetTask server and push a demo schema/metric",
		RunE:  runAgent,
	}
	root.Flags().StringVar(&serverAddr, "server", "ws://127.0.0.1:7430/nettask", "server WebSocket address")
	root.Flags().StringVar(&configDir, "config-dir", "", "directory containing <environment>.yaml (optional, default: config)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	opts := config.DefaultLoaderOptions()
	if configDir != "" {
		opts.ConfigDir = configDir
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}

	psk, err := os.ReadFile(cfg.PreSharedSecretPath)
	if err != nil {
		return fmt.Errorf("nettask-agent: read pre-shared secret: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := transport.Dial(ctx, serverAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	state := datagram.NewAgentSession(make([]byte, cfg.HashLen))
	start := time.Now()
	metrics.HandshakesInitiated.WithLabelValues(datagram.RoleAgent.String()).Inc()

	agentKeys, err := ecdhe.GenerateKeyPair()
	metrics.CryptoOperations.WithLabelValues("generate_key_pair", cryptoResult(err)).Inc()
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return err
	}

	if err := state.OnSend(datagram.TypeRequestRegister); err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return err
	}
	reqReg := &datagram.RequestRegister{
		Header:    datagram.Header{SessionID: state.SessionID},
		PublicKey: agentKeys.PublicKey(),
	}
	wire, err := reqReg.Serialize()
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, wire); err != nil {
		return err
	}
	metrics.DatagramsSent.WithLabelValues(reqReg.Type().String()).Inc()
	log.Info("sent RequestRegister", logger.DatagramType(reqReg.Type()))

	frame, err := conn.Receive(ctx)
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return err
	}
	deserializeStart := time.Now()
	got, err := datagram.Deserialize(frame, cfg.HashLen, nil, nil)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues(rejectionReason(err)).Inc()
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return fmt.Errorf("nettask-agent: handshake failed: %w", err)
	}
	metrics.DatagramProcessingDuration.WithLabelValues(got.Type().String()).Observe(time.Since(deserializeStart).Seconds())
	challenge, ok := got.(*datagram.RegisterChallenge)
	if !ok {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return fmt.Errorf("nettask-agent: expected RegisterChallenge, got %s", got.Type())
	}
	if err := state.OnReceive(datagram.TypeRegisterChallenge); err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return err
	}
	state.SessionID = challenge.Base().SessionID
	metrics.HandshakeDuration.WithLabelValues(datagram.PhaseAwaitChallenge.String()).Observe(time.Since(start).Seconds())

	err = agentKeys.DeriveSharedSecret(challenge.PublicKey, challenge.Salt, challenge.Challenge, psk)
	metrics.CryptoOperations.WithLabelValues("derive_shared_secret", cryptoResult(err)).Inc()
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return err
	}
	state.Session = agentKeys

	response, err := agentKeys.ChallengeResponse(challenge.Challenge)
	metrics.CryptoOperations.WithLabelValues("challenge_response", cryptoResult(err)).Inc()
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return err
	}
	if err := state.OnSend(datagram.TypeRegisterChallenge2); err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return err
	}
	reg2 := &datagram.RegisterChallenge2{
		Header:            datagram.Header{SessionID: state.SessionID},
		ChallengeResponse: response,
	}
	wire, err = reg2.Serialize()
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return err
	}
	if err := conn.Send(ctx, wire); err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return err
	}
	metrics.HandshakeDuration.WithLabelValues(datagram.PhaseAwaitChallenge2.String()).Observe(time.Since(start).Seconds())
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	log.Info("session established", logger.Phase(state.Phase), logger.SessionID(state.SessionID))

	schema := spack.TaskSchema{
		Name: "cpu",
		Fields: []spack.FieldSchema{
			{Name: "usage", Type: spack.FieldFloat},
			{Name: "ts", Type: spack.FieldInt},
		},
	}
	if err := pushSchemas(ctx, conn, state, schema); err != nil {
		return err
	}
	return sendMetric(ctx, conn, state, schema)
}

func pushSchemas(ctx context.Context, conn *transport.WebSocketTransport, state *datagram.SessionState, schema spack.TaskSchema) error {
	if err := state.OnSend(datagram.TypePushSchemas); err != nil {
		return err
	}
	push := &datagram.PushSchemas{
		Header:  datagram.Header{SessionID: state.SessionID},
		Schemas: map[string]spack.TaskSchema{schema.Name: schema},
	}
	wire, err := push.Serialize(state.Session)
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, wire); err != nil {
		return err
	}
	metrics.DatagramsSent.WithLabelValues(push.Type().String()).Inc()
	log.Info("pushed schema", logger.String("task", schema.Name), logger.DatagramType(push.Type()))
	return nil
}

func sendMetric(ctx context.Context, conn *transport.WebSocketTransport, state *datagram.SessionState, schema spack.TaskSchema) error {
	if err := state.OnSend(datagram.TypeSendMetrics); err != nil {
		return err
	}
	metric := &datagram.SendMetrics{
		Header: datagram.Header{SessionID: state.SessionID},
		TaskID: schema.Name,
		Metric: spack.Metric{"usage": 0.42, "ts": int64(time.Now().Unix())},
	}
	wire, err := metric.Serialize(state.Session, schema)
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, wire); err != nil {
		return err
	}
	metrics.DatagramsSent.WithLabelValues(metric.Type().String()).Inc()
	log.Info("sent metric", logger.String("task", schema.Name), logger.DatagramType(metric.Type()))
	return nil
}
