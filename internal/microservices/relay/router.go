package relay

import (
	"fmt"
	"log/slog"

	"gfxrelay/internal/protocol"
)

// RouteResult describes what the router did with one inbound frame.
type RouteResult struct {
	Type      protocol.MessageType
	Heartbeat bool // absorbed locally, never forwarded
	Targets   int  // open peers of the opposite role at routing time
	Delivered int  // targets whose send succeeded
}

// Router fans inbound messages out to the opposite role. It keeps no state of
// its own; the target set is recomputed from the registry for every message.
type Router struct {
	registry *Registry
	logger   *slog.Logger
}

func NewRouter(registry *Registry, logger *slog.Logger) *Router {
	return &Router{registry: registry, logger: logger}
}

// Route validates frame from sender and forwards it. Protocol errors are
// returned after logging; the caller must keep the connection open.
func (r *Router) Route(senderID string, senderRole protocol.Role, frame []byte) (RouteResult, error) {
	env, err := protocol.Validate(frame)
	if err != nil {
		r.logger.Warn("invalid_message_dropped",
			"peer_id", senderID,
			"error", err.Error(),
		)
		return RouteResult{}, err
	}

	result := RouteResult{Type: env.Type}

	if env.Type.IsHeartbeat() {
		r.registry.Touch(senderID)
		r.logger.Debug("heartbeat_received",
			"peer_id", senderID,
			"message_type", env.Type,
		)
		result.Heartbeat = true
		return result, nil
	}

	if env.Direction() != senderRole.Sends() {
		r.logger.Warn("wrong_direction_dropped",
			"peer_id", senderID,
			"role", senderRole,
			"message_type", env.Type,
		)
		return result, fmt.Errorf("%w: %s from %s", protocol.ErrWrongDirection, env.Type, senderRole)
	}

	targetRole := senderRole.Opposite()
	targets := r.registry.Targets(targetRole)
	result.Targets = len(targets)

	if len(targets) == 0 {
		r.logger.Warn("no_target_peers",
			"target_role", targetRole,
			"message_type", env.Type,
			"peer_id", senderID,
		)
		return result, nil
	}

	for _, target := range targets {
		// a target closed after the snapshot just fails its send
		if err := target.Socket.Send(frame); err != nil {
			r.logger.Warn("fanout_send_failed",
				"peer_id", target.ID,
				"message_type", env.Type,
				"error", err.Error(),
			)
			continue
		}
		result.Delivered++
	}

	r.logger.Info("message_routed",
		"from", senderRole,
		"to", targetRole,
		"message_type", env.Type,
		"delivered", result.Delivered,
	)
	return result, nil
}
