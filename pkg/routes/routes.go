// Package routes exposes the HTTP control surface: a single POST endpoint
// dispatching named actions against the device, the peer directory and the
// record store.
package routes

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-viper/mapstructure/v2"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	mccrypto "github.com/kabili207/meshcore-go/core/crypto"

	"github.com/wombatinua/meshcore-ai/pkg/directory"
	"github.com/wombatinua/meshcore-ai/pkg/meshcore/codec"
	"github.com/wombatinua/meshcore-ai/pkg/models"
	"github.com/wombatinua/meshcore-ai/pkg/store"
)

const defaultListLimit = 100

// Device is the slice of the device client the control surface drives.
type Device interface {
	Reboot() error
	SyncDeviceTime() error
	SendFloodAdvert() error
	SendZeroHopAdvert() error
	GetSelfInfo() (*codec.SelfInfo, error)
	GetContacts() ([]*models.NodeInfo, error)
	GetChannels() ([]*codec.ChannelInfo, error)
	GetChannel(index int) (*codec.ChannelInfo, error)
	SetChannel(index int, name string, secret []byte) error
	DeleteChannel(index int) error
	SendTextMessage(pubKey []byte, text string, kind uint8) error
	SendChannelTextMessage(channelIdx int, text string) error
}

type actionRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

type actionResponse struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// actionError carries an HTTP status alongside the message so the dispatcher
// can map validation failures to 400 and unknown actions to 404.
type actionError struct {
	status int
	msg    string
}

func (e *actionError) Error() string { return e.msg }

func badRequest(format string, args ...any) *actionError {
	return &actionError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

type actionFunc func(ctx context.Context, params map[string]any) (any, error)

// ApiRouter serves the control surface on a configured path.
type ApiRouter struct {
	apiPath string
	device  Device
	dir     *directory.Directory
	stores  *store.Stores
	actions map[string]actionFunc
	log     *slog.Logger
}

func NewApiRouter(apiPath string, device Device, dir *directory.Directory,
	stores *store.Stores, log *slog.Logger) *ApiRouter {
	if log == nil {
		log = slog.Default()
	}
	ar := &ApiRouter{
		apiPath: apiPath,
		device:  device,
		dir:     dir,
		stores:  stores,
		log:     log,
	}
	ar.actions = map[string]actionFunc{
		"reboot":               ar.actionReboot,
		"sync-time":            ar.actionSyncTime,
		"flood-advert":         ar.actionFloodAdvert,
		"zero-hop-advert":      ar.actionZeroHopAdvert,
		"self-info":            ar.actionSelfInfo,
		"contacts":             ar.actionContacts,
		"channels":             ar.actionChannels,
		"get-channel":          ar.actionGetChannel,
		"set-channel":          ar.actionSetChannel,
		"delete-channel":       ar.actionDeleteChannel,
		"send-message":         ar.actionSendMessage,
		"send-channel-message": ar.actionSendChannelMessage,
		"nodes":                ar.actionNodes,
		"adverts":              ar.actionAdverts,
		"messages":             ar.actionMessages,
	}
	return ar
}

// Serve blocks, listening on the given address.
func (ar *ApiRouter) Serve(listenAddr string) error {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc(ar.apiPath, ar.handleAction)
	router.Use(handlers.ProxyHeaders)
	router.Use(ar.requestLogger)
	h := handlers.RecoveryHandler()

	ar.log.Info("control surface listening", "addr", listenAddr, "path", ar.apiPath)
	return http.ListenAndServe(listenAddr, h(router))
}

// Handler returns the routed handler without binding a listener, for tests.
func (ar *ApiRouter) Handler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc(ar.apiPath, ar.handleAction)
	return router
}

func (ar *ApiRouter) requestLogger(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		ar.log.Info("endpoint hit", "method", r.Method, "path", r.URL.Path, "remote_host", r.RemoteAddr)
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func (ar *ApiRouter) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeResponse(w, http.StatusMethodNotAllowed, actionResponse{OK: false, Error: "POST required"})
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, http.StatusBadRequest, actionResponse{OK: false, Error: "invalid JSON body"})
		return
	}

	fn, ok := ar.actions[req.Action]
	if !ok {
		writeResponse(w, http.StatusNotFound,
			actionResponse{OK: false, Error: fmt.Sprintf("unknown action %q", req.Action)})
		return
	}

	result, err := fn(r.Context(), req.Params)
	if err != nil {
		status := http.StatusInternalServerError
		if ae, ok := err.(*actionError); ok {
			status = ae.status
		}
		ar.log.Warn("action failed", "action", req.Action, "error", err)
		writeResponse(w, status, actionResponse{OK: false, Error: err.Error()})
		return
	}
	writeResponse(w, http.StatusOK, actionResponse{OK: true, Result: result})
}

func writeResponse(w http.ResponseWriter, status int, resp actionResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func decodeParams(params map[string]any, out any) error {
	if err := mapstructure.Decode(params, out); err != nil {
		return badRequest("invalid params: %v", err)
	}
	return nil
}

func (ar *ApiRouter) actionReboot(_ context.Context, _ map[string]any) (any, error) {
	if err := ar.device.Reboot(); err != nil {
		return nil, err
	}
	return "rebooting", nil
}

func (ar *ApiRouter) actionSyncTime(_ context.Context, _ map[string]any) (any, error) {
	if err := ar.device.SyncDeviceTime(); err != nil {
		return nil, err
	}
	return "time synced", nil
}

func (ar *ApiRouter) actionFloodAdvert(_ context.Context, _ map[string]any) (any, error) {
	if err := ar.device.SendFloodAdvert(); err != nil {
		return nil, err
	}
	return "advert sent", nil
}

func (ar *ApiRouter) actionZeroHopAdvert(_ context.Context, _ map[string]any) (any, error) {
	if err := ar.device.SendZeroHopAdvert(); err != nil {
		return nil, err
	}
	return "advert sent", nil
}

func (ar *ApiRouter) actionSelfInfo(_ context.Context, _ map[string]any) (any, error) {
	info, err := ar.device.GetSelfInfo()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"pub_key":   hex.EncodeToString(info.PublicKey[:]),
		"name":      info.Name,
		"latitude":  info.AdvLat,
		"longitude": info.AdvLon,
	}, nil
}

func (ar *ApiRouter) actionContacts(_ context.Context, _ map[string]any) (any, error) {
	nodes, err := ar.device.GetContacts()
	if err != nil {
		return nil, err
	}
	return nodesToJSON(nodes), nil
}

func (ar *ApiRouter) actionChannels(_ context.Context, _ map[string]any) (any, error) {
	channels, err := ar.device.GetChannels()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(channels))
	for _, ch := range channels {
		out = append(out, channelToJSON(ch))
	}
	return out, nil
}

func (ar *ApiRouter) actionGetChannel(_ context.Context, params map[string]any) (any, error) {
	var p struct {
		Index int `mapstructure:"index"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ch, err := ar.device.GetChannel(p.Index)
	if err != nil {
		return nil, err
	}
	return channelToJSON(ch), nil
}

func (ar *ApiRouter) actionSetChannel(_ context.Context, params map[string]any) (any, error) {
	var p struct {
		Index  int    `mapstructure:"index"`
		Name   string `mapstructure:"name"`
		Secret string `mapstructure:"secret"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, badRequest("channel name is required")
	}
	secret, err := hex.DecodeString(p.Secret)
	if err != nil {
		return nil, badRequest("secret is not valid hex")
	}
	if len(secret) != codec.ChannelSecretSize {
		return nil, badRequest("secret must be %d bytes, got %d", codec.ChannelSecretSize, len(secret))
	}
	if err := ar.device.SetChannel(p.Index, p.Name, secret); err != nil {
		return nil, err
	}
	return map[string]any{
		"index":        p.Index,
		"name":         p.Name,
		"channel_hash": mccrypto.ComputeChannelHash(secret),
	}, nil
}

func (ar *ApiRouter) actionDeleteChannel(_ context.Context, params map[string]any) (any, error) {
	var p struct {
		Index int `mapstructure:"index"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := ar.device.DeleteChannel(p.Index); err != nil {
		return nil, err
	}
	return "channel cleared", nil
}

func (ar *ApiRouter) actionSendMessage(_ context.Context, params map[string]any) (any, error) {
	var p struct {
		PubKey string `mapstructure:"pub_key"`
		Text   string `mapstructure:"text"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	pubKey, err := hex.DecodeString(p.PubKey)
	if err != nil {
		return nil, badRequest("pub_key is not valid hex")
	}
	if len(pubKey) < 6 {
		return nil, badRequest("pub_key needs at least 6 bytes")
	}
	if p.Text == "" {
		return nil, badRequest("text is required")
	}
	if err := ar.device.SendTextMessage(pubKey, p.Text, 0); err != nil {
		return nil, err
	}
	return "message sent", nil
}

func (ar *ApiRouter) actionSendChannelMessage(_ context.Context, params map[string]any) (any, error) {
	var p struct {
		Index int    `mapstructure:"index"`
		Text  string `mapstructure:"text"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Text == "" {
		return nil, badRequest("text is required")
	}
	if err := ar.device.SendChannelTextMessage(p.Index, p.Text); err != nil {
		return nil, err
	}
	return "message sent", nil
}

func (ar *ApiRouter) actionNodes(_ context.Context, _ map[string]any) (any, error) {
	return nodesToJSON(ar.dir.ListAll()), nil
}

func (ar *ApiRouter) actionAdverts(ctx context.Context, params map[string]any) (any, error) {
	var p struct {
		Limit int `mapstructure:"limit"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = defaultListLimit
	}
	recs, err := ar.stores.Adverts.GetAdverts(ctx, p.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, advertToJSON(rec))
	}
	return out, nil
}

func (ar *ApiRouter) actionMessages(ctx context.Context, params map[string]any) (any, error) {
	var p struct {
		Limit int `mapstructure:"limit"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = defaultListLimit
	}
	recs, err := ar.stores.Messages.GetMessages(ctx, p.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, messageToJSON(rec))
	}
	return out, nil
}
