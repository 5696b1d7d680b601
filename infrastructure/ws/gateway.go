package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"chat-core/auth"
	"chat-core/observability"
	"chat-core/runtime"
	"chat-core/services"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement belongs to the deployment's edge; the gateway
	// itself only trusts the verified token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway terminates websocket connections and the HTTP service API in
// front of the messaging core. All domain behavior stays behind the
// services; the gateway translates frames and status codes.
type Gateway struct {
	verifier    auth.TokenVerifier
	directory   *auth.SessionDirectory
	authorizer  *auth.ChannelAuthorizer
	presence    *runtime.PresenceTracker
	dispatcher  *runtime.Dispatcher
	rooms       services.IRoomService
	messages    services.IMessageService
	invitations services.IInvitationService
	monitor     *observability.Monitor
	log         *slog.Logger
	sinkBuffer  int
}

func NewGateway(
	verifier auth.TokenVerifier,
	directory *auth.SessionDirectory,
	authorizer *auth.ChannelAuthorizer,
	presence *runtime.PresenceTracker,
	dispatcher *runtime.Dispatcher,
	rooms services.IRoomService,
	messages services.IMessageService,
	invitations services.IInvitationService,
	monitor *observability.Monitor,
	log *slog.Logger,
	sinkBuffer int,
) *Gateway {
	return &Gateway{
		verifier:    verifier,
		directory:   directory,
		authorizer:  authorizer,
		presence:    presence,
		dispatcher:  dispatcher,
		rooms:       rooms,
		messages:    messages,
		invitations: invitations,
		monitor:     monitor,
		log:         log,
		sinkBuffer:  sinkBuffer,
	}
}

type contextKey string

const identityKey contextKey = "identity"

// identityFrom pulls the verified identity the middleware stored.
func identityFrom(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(auth.Identity)
	return identity, ok
}

// Authenticate verifies the bearer token (header, or token query param
// for websocket clients that cannot set headers) and records the identity
// in the session directory.
func (g *Gateway) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		identity, err := g.verifier.Verify(tokenString)
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		g.directory.Record(identity.User)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

// ServeWS upgrades an authenticated request and runs the two pumps. It
// returns immediately; the connection lives on its own goroutines.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn := newConnection(g, wsConn, identity)
	g.monitor.ConnectionOpened()
	g.log.Info("connection opened", "connection_id", conn.id, "user_id", identity.User.ID)

	go conn.writePump()
	go conn.readPump(context.Background())
}
