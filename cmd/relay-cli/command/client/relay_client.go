package client

// relay_client.go = dashboard relay access for relayctl: listen, one-shot send and status.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"gfxrelay/internal/config"
	"gfxrelay/internal/microservices/peer"
	"gfxrelay/internal/microservices/relay"
	"gfxrelay/internal/protocol"

	"github.com/fatih/color"
)

// newPeer builds the role's client and returns its shared core.
func newPeer(role protocol.Role, opts peer.Options, logger *slog.Logger) *peer.Client {
	if role == protocol.RoleMain {
		return peer.NewMainClient(opts, logger).Client
	}
	return peer.NewSubClient(opts, logger).Client
}

// PeerOptions derives client options from cfg with the URL overridden.
func PeerOptions(cfg *config.Config, relayURL string) peer.Options {
	opts := peer.OptionsFromConfig(cfg)
	opts.URL = relayURL
	return opts
}

// Listen connects as role and prints every message it receives until Ctrl+C.
func Listen(role protocol.Role, opts peer.Options, logger *slog.Logger) error {
	c := newPeer(role, opts, logger)

	c.OnConnectionChange(func(status peer.ConnectionStatus) {
		switch status {
		case peer.StatusConnected:
			color.Green("✅ Connected as %s", role)
		case peer.StatusReconnecting:
			color.Yellow("🔄 Reconnecting...")
		default:
			color.HiBlack("🔌 Disconnected")
		}
	})
	c.OnError(func(err error) {
		color.Red("⚠️  %v", err)
	})
	c.OnMessage(func(env protocol.Envelope) {
		PrintEnvelope(env)
	})

	fmt.Printf("\n🔌 Connecting to %s as %s...\n", opts.URL, role)
	c.Connect()
	defer c.Disconnect()

	// Channel for interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	<-interrupt
	fmt.Println("Closing connection...")
	return nil
}

// SendOnce connects as role, sends one envelope and disconnects. The client
// is not allowed to retry; a failed handshake fails the command.
func SendOnce(role protocol.Role, opts peer.Options, env protocol.Envelope, timeout time.Duration, logger *slog.Logger) error {
	opts.MaxReconnectAttempts = 0
	c := newPeer(role, opts, logger)

	ready := make(chan error, 1)
	c.OnConnectionChange(func(status peer.ConnectionStatus) {
		if status == peer.StatusConnected {
			select {
			case ready <- nil:
			default:
			}
		}
	})
	c.OnError(func(err error) {
		select {
		case ready <- err:
		default:
		}
	})

	c.Connect()
	defer c.Disconnect()

	select {
	case err := <-ready:
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}
	case <-time.After(timeout):
		return fmt.Errorf("connection failed: no handshake within %s", timeout)
	}

	return c.SendEnvelope(env)
}

// BuildEnvelope wraps a raw JSON payload under msgType, stamped now.
func BuildEnvelope(msgType string, payload string, now time.Time) (protocol.Envelope, error) {
	t := protocol.MessageType(msgType)
	if !t.IsKnown() {
		return protocol.Envelope{}, fmt.Errorf("%w: %s", protocol.ErrUnknownType, msgType)
	}
	if payload == "" {
		payload = "{}"
	}
	env := protocol.Envelope{
		Type:      t,
		Payload:   json.RawMessage(payload),
		Timestamp: protocol.FormatTimestamp(now),
	}

	// run the same checks the relay applies
	data, err := env.ToJSON()
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.Validate(data)
}

// StatusURL turns the dashboard websocket URL into the relay's /status URL.
func StatusURL(relayURL string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid relay URL scheme: %q", u.Scheme)
	}
	u.Path = "/status"
	u.RawQuery = ""
	return u.String(), nil
}

// FetchStatus queries GET /status on the relay.
func FetchStatus(relayURL string) (*relay.Status, error) {
	statusURL, err := StatusURL(relayURL)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := httpClient.Get(statusURL)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed: %s", resp.Status)
	}

	var status relay.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

// PrintStatus pretty prints a relay status.
func PrintStatus(s *relay.Status) {
	if s.Running {
		color.Green("● relay running on port %d", s.Port)
	} else {
		color.Red("○ relay stopped")
	}
	fmt.Printf("   clients: %d (main %d, sub %d)\n", s.TotalClients, s.MainClients, s.SubClients)
}

// PrintSnapshot pretty prints a presence snapshot.
func PrintSnapshot(snap *relay.Snapshot) {
	if snap == nil {
		color.HiBlack("no presence snapshot published")
		return
	}
	PrintStatus(&snap.Status)
	fmt.Printf("   updated: %s\n", snap.UpdatedAt.Format(time.RFC3339))
	for _, p := range snap.Peers {
		line := fmt.Sprintf("   %-4s %s  since %s  last heartbeat %s",
			p.Role, p.ID,
			p.ConnectedAt.Format(time.TimeOnly),
			p.LastHeartbeatAt.Format(time.TimeOnly),
		)
		if p.Role == string(protocol.RoleMain) {
			color.Cyan("%s", line)
		} else {
			color.Magenta("%s", line)
		}
	}
}

// PrintEnvelope prints one received message with its payload indented.
func PrintEnvelope(env protocol.Envelope) {
	var pretty bytes.Buffer
	body := string(env.Payload)
	if err := json.Indent(&pretty, env.Payload, "   ", "  "); err == nil {
		body = pretty.String()
	}

	header := fmt.Sprintf("[%s] %s", env.Timestamp, env.Type)
	switch env.Direction() {
	case protocol.MainToSub:
		color.Cyan("%s", header)
	case protocol.SubToMain:
		color.Magenta("%s", header)
	}
	fmt.Printf("   %s\n", body)
}
