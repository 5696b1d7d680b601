package ws

import (
	"encoding/json"
	"net/http"
	"strconv"

	"chat-core/domain"
	"chat-core/errors"
	"chat-core/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Router wires the service API: room CRUD, membership management,
// invitations, messages, and the websocket endpoint. Every route runs
// behind the authentication middleware.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(g.Authenticate)

	r.Get("/ws", g.ServeWS)
	r.Get("/stats", g.stats)

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", g.createRoom)
		r.Get("/", g.listRooms)
		r.Route("/{roomID}", func(r chi.Router) {
			r.Get("/", g.getRoom)
			r.Patch("/", g.updateRoom)
			r.Delete("/", g.deleteRoom)
			r.Get("/messages", g.listRoomMessages)
			r.Post("/members", g.addMembers)
			r.Delete("/members", g.removeMembers)
			r.Post("/leave", g.leaveRoom)
			r.Put("/members/{userID}/admin", g.setMemberAdmin)
			r.Post("/invite", g.invite)
		})
	})

	r.Route("/messages", func(r chi.Router) {
		r.Post("/", g.sendMessage)
		r.Get("/", g.listMessages)
		r.Route("/{messageID}", func(r chi.Router) {
			r.Post("/read", g.markRead)
			r.Patch("/", g.updateMessage)
			r.Delete("/", g.deleteMessage)
		})
	})

	return r
}

func (g *Gateway) stats(w http.ResponseWriter, r *http.Request) {
	g.respond(w, http.StatusOK, g.monitor.Snapshot())
}

func (g *Gateway) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (g *Gateway) respondErr(w http.ResponseWriter, err error) {
	g.respond(w, errors.MapToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		g.respond(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return false
	}
	return true
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

type roomBody struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Kind        string   `json:"kind"`
	IsPrivate   bool     `json:"is_private"`
	MemberIDs   []string `json:"member_ids"`
}

type roomResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	CreatedBy   string `json:"created_by"`
	IsPrivate   bool   `json:"is_private"`
}

func toRoomResponse(room domain.Room) roomResponse {
	return roomResponse{
		ID:          room.ID.String(),
		Name:        room.Name,
		Description: room.Description,
		Kind:        string(room.Kind),
		CreatedBy:   room.CreatedBy,
		IsPrivate:   room.IsPrivate,
	}
}

func (g *Gateway) createRoom(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	var body roomBody
	if !g.decode(w, r, &body) {
		return
	}
	room, err := g.rooms.CreateRoom(r.Context(), services.CreateRoomCommand{
		CreatorID:   identity.User.ID,
		Name:        body.Name,
		Description: body.Description,
		Kind:        domain.RoomKind(body.Kind),
		IsPrivate:   body.IsPrivate,
		MemberIDs:   body.MemberIDs,
	})
	if err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusCreated, toRoomResponse(room))
}

func (g *Gateway) listRooms(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	filter := services.RoomFilter{
		MemberOnly: r.URL.Query().Get("member_only") == "true",
		Kind:       domain.RoomKind(r.URL.Query().Get("kind")),
	}
	rooms, err := g.rooms.ListRooms(r.Context(), identity.User.ID, filter)
	if err != nil {
		g.respondErr(w, err)
		return
	}
	out := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toRoomResponse(room))
	}
	g.respond(w, http.StatusOK, out)
}

func (g *Gateway) getRoom(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed room id"))
		return
	}
	room, err := g.rooms.GetRoom(r.Context(), identity.User.ID, roomID)
	if err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusOK, toRoomResponse(room))
}

func (g *Gateway) updateRoom(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed room id"))
		return
	}
	var patch struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsPrivate   *bool   `json:"is_private"`
	}
	if !g.decode(w, r, &patch) {
		return
	}
	room, err := g.rooms.UpdateRoom(r.Context(), identity.User.ID, roomID, services.RoomPatch{
		Name:        patch.Name,
		Description: patch.Description,
		IsPrivate:   patch.IsPrivate,
	})
	if err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusOK, toRoomResponse(room))
}

func (g *Gateway) deleteRoom(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed room id"))
		return
	}
	actor := services.Actor{UserID: identity.User.ID, Roles: identity.Roles}
	if err = g.rooms.DeleteRoom(r.Context(), actor, roomID); err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusNoContent, nil)
}

type memberBody struct {
	UserIDs []string `json:"user_ids"`
	AsAdmin bool     `json:"as_admin"`
}

type memberResponse struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

func toMemberResponses(members []domain.Membership) []memberResponse {
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{UserID: m.UserID, IsAdmin: m.IsAdmin})
	}
	return out
}

func (g *Gateway) addMembers(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed room id"))
		return
	}
	var body memberBody
	if !g.decode(w, r, &body) {
		return
	}
	change, err := g.rooms.AddMembers(r.Context(), identity.User.ID, roomID, body.UserIDs, body.AsAdmin)
	if err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusOK, toMemberResponses(change.Members))
}

func (g *Gateway) removeMembers(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed room id"))
		return
	}
	var body memberBody
	if !g.decode(w, r, &body) {
		return
	}
	change, err := g.rooms.RemoveMembers(r.Context(), identity.User.ID, roomID, body.UserIDs)
	if err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusOK, toMemberResponses(change.Members))
}

func (g *Gateway) leaveRoom(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed room id"))
		return
	}
	if err = g.rooms.Leave(r.Context(), identity.User.ID, roomID); err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusNoContent, nil)
}

func (g *Gateway) setMemberAdmin(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed room id"))
		return
	}
	var body struct {
		IsAdmin bool `json:"is_admin"`
	}
	if !g.decode(w, r, &body) {
		return
	}
	err = g.rooms.SetMemberAdmin(r.Context(), identity.User.ID, roomID, chi.URLParam(r, "userID"), body.IsAdmin)
	if err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusNoContent, nil)
}

func (g *Gateway) invite(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed room id"))
		return
	}
	var body memberBody
	if !g.decode(w, r, &body) {
		return
	}
	result, err := g.invitations.Invite(r.Context(), identity.User.ID, roomID, body.UserIDs)
	if err != nil {
		g.respondErr(w, err)
		return
	}
	invitations := make([]MessagePayload, 0, len(result.Invitations))
	for _, m := range result.Invitations {
		invitations = append(invitations, toMessagePayload(m))
	}
	g.respond(w, http.StatusOK, map[string]any{
		"members":     toMemberResponses(result.Members),
		"invitations": invitations,
	})
}

type sendBody struct {
	RecipientKind string `json:"recipient_kind"`
	RecipientID   string `json:"recipient_id"`
	Content       string `json:"content"`
}

func (g *Gateway) sendMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	var body sendBody
	if !g.decode(w, r, &body) {
		return
	}
	message, err := g.messages.Send(r.Context(), services.SendCommand{
		SenderID: identity.User.ID,
		Recipient: domain.Recipient{
			Kind: domain.RecipientKind(body.RecipientKind),
			ID:   body.RecipientID,
		},
		Content: body.Content,
	})
	if err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusCreated, toMessagePayload(message))
}

type messagePage struct {
	Messages []MessagePayload `json:"messages"`
	Cursor   *string          `json:"cursor,omitempty"`
}

func toMessagePage(messages []domain.Message, cursor *string) messagePage {
	out := make([]MessagePayload, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessagePayload(m))
	}
	return messagePage{Messages: out, Cursor: cursor}
}

func (g *Gateway) listMessages(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	q := r.URL.Query()
	query := services.ListQuery{
		Recipient: domain.Recipient{
			Kind: domain.RecipientKind(q.Get("recipient_kind")),
			ID:   q.Get("recipient_id"),
		},
		SenderID:   q.Get("sender_id"),
		UnreadOnly: q.Get("unread_only") == "true",
		Limit:      pageLimit(q.Get("limit")),
	}
	if cursor := q.Get("cursor"); cursor != "" {
		query.Cursor = &cursor
	}
	messages, cursor, err := g.messages.List(r.Context(), identity.User.ID, query)
	if err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusOK, toMessagePage(messages, cursor))
}

func (g *Gateway) listRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed room id"))
		return
	}
	q := r.URL.Query()
	var cursor *string
	if c := q.Get("cursor"); c != "" {
		cursor = &c
	}
	messages, next, err := g.messages.ListForRoom(r.Context(), roomID, cursor, pageLimit(q.Get("limit")))
	if err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusOK, toMessagePage(messages, next))
}

func (g *Gateway) markRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	messageID, err := pathUUID(r, "messageID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed message id"))
		return
	}
	if err = g.messages.MarkRead(r.Context(), identity.User.ID, messageID); err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusNoContent, nil)
}

func (g *Gateway) updateMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	messageID, err := pathUUID(r, "messageID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed message id"))
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if !g.decode(w, r, &body) {
		return
	}
	message, err := g.messages.Update(r.Context(), identity.User.ID, messageID, body.Content)
	if err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusOK, toMessagePayload(message))
}

func (g *Gateway) deleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	messageID, err := pathUUID(r, "messageID")
	if err != nil {
		g.respondErr(w, errors.Validationf("malformed message id"))
		return
	}
	if err = g.messages.Delete(r.Context(), identity.User.ID, messageID); err != nil {
		g.respondErr(w, err)
		return
	}
	g.respond(w, http.StatusNoContent, nil)
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

func pageLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
