package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/gravvy/internal/outbox"
	"github.com/matheus3301/gravvy/internal/pool"
	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/session"
	"github.com/matheus3301/gravvy/internal/status"
	"github.com/matheus3301/gravvy/internal/store"
	intsync "github.com/matheus3301/gravvy/internal/sync"
)

// ControlService is the full name of the control service. Every method
// takes and returns a google.protobuf.Struct.
const ControlService = "gravvy.v1.Control"

// Control methods.
const (
	MethodStatus             = "Status"
	MethodSignIn             = "SignIn"
	MethodSignOut            = "SignOut"
	MethodRefresh            = "Refresh"
	MethodVideos             = "Videos"
	MethodVideo              = "Video"
	MethodPlay               = "Play"
	MethodToggleLike         = "ToggleLike"
	MethodClearNotifications = "ClearNotifications"
	MethodLeave              = "Leave"
	MethodRevokeMember       = "RevokeMember"
	MethodDeleteClips        = "DeleteClips"
	MethodCreateVideo        = "CreateVideo"
)

var controlMethods = []string{
	MethodStatus, MethodSignIn, MethodSignOut, MethodRefresh,
	MethodVideos, MethodVideo, MethodPlay, MethodToggleLike,
	MethodClearNotifications, MethodLeave, MethodRevokeMember,
	MethodDeleteClips, MethodCreateVideo,
}

// FullMethod returns the gRPC path of a control method.
func FullMethod(method string) string {
	return "/" + ControlService + "/" + method
}

type controlServer interface {
	call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error)
}

func controlHandler(method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		h := srv.(controlServer)
		if interceptor == nil {
			return h.call(ctx, method, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return h.call(ctx, method, req.(*structpb.Struct))
		})
	}
}

func controlServiceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: ControlService,
		HandlerType: (*controlServer)(nil),
		Metadata:    "gravvy/v1/control",
	}
	for _, m := range controlMethods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{MethodName: m, Handler: controlHandler(m)})
	}
	return desc
}

// Control answers requests from gravvyctl on behalf of one account.
type Control struct {
	account   string
	startedAt time.Time
	pool      *pool.Pool
	machine   *status.Machine
	session   *session.Manager
	engine    *intsync.Engine
	actions   *outbox.Actions
	logger    *zap.Logger
}

// NewControl creates the control service of account.
func NewControl(p Params, pl *pool.Pool, m *status.Machine, sm *session.Manager, engine *intsync.Engine, actions *outbox.Actions, logger *zap.Logger) *Control {
	return &Control{
		account:   p.Account,
		startedAt: time.Now(),
		pool:      pl,
		machine:   m,
		session:   sm,
		engine:    engine,
		actions:   actions,
		logger:    logger,
	}
}

func (c *Control) call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := c.dispatch(ctx, method, req.AsMap())
	if err != nil {
		c.logger.Debug("control call failed", zap.String("method", method), zap.Error(err))
		return nil, toStatus(method, err)
	}
	return resp, nil
}

func (c *Control) dispatch(ctx context.Context, method string, args map[string]any) (*structpb.Struct, error) {
	switch method {
	case MethodStatus:
		return c.status()
	case MethodSignIn:
		return c.signIn(stringArg(args, "phone"), stringArg(args, "token"))
	case MethodSignOut:
		c.session.SignOut()
		return empty(nil)
	case MethodRefresh:
		return empty(c.refresh(ctx, args))
	case MethodVideos:
		return List(c.pool.Graph().Videos(), VideoFields)
	case MethodVideo:
		return c.video(args)
	}

	hashKey := stringArg(args, "hash_key")
	if hashKey == "" && method != MethodCreateVideo {
		return nil, invalid("hash_key is required")
	}
	switch method {
	case MethodPlay:
		return empty(c.actions.Play(ctx, hashKey))
	case MethodToggleLike:
		return empty(c.actions.ToggleLike(ctx, hashKey))
	case MethodClearNotifications:
		return empty(c.actions.ClearNotifications(ctx, hashKey))
	case MethodLeave:
		return empty(c.actions.Leave(ctx, hashKey))
	case MethodRevokeMember:
		phone := stringArg(args, "phone")
		if err := session.ValidatePhone(phone); err != nil {
			return nil, invalid(err.Error())
		}
		return empty(c.actions.RevokeMember(ctx, hashKey, phone))
	case MethodDeleteClips:
		ids := stringsArg(args, "clip_ids")
		if len(ids) == 0 {
			return nil, invalid("clip_ids is required")
		}
		return empty(c.actions.DeleteClips(ctx, hashKey, ids))
	case MethodCreateVideo:
		key, err := c.actions.CreateVideo(ctx, stringArg(args, "title"))
		if err != nil {
			return nil, err
		}
		return structpb.NewStruct(map[string]any{"hash_key": key})
	}
	return nil, grpcstatus.Errorf(codes.Unimplemented, "unknown method %s", method)
}

func (c *Control) status() (*structpb.Struct, error) {
	auth := c.session.State()
	g := c.pool.Graph()
	return structpb.NewStruct(map[string]any{
		"account":        c.account,
		"store":          string(c.machine.Current()),
		"open":           c.pool.IsOpen(),
		"authenticated":  auth.Authenticated,
		"phone":          auth.Phone,
		"expires_at":     timeValue(auth.ExpiresAt),
		"videos":         int64(len(g.Videos())),
		"pending_merges": int64(c.pool.Loop().Pending()),
		"uptime_ms":      time.Since(c.startedAt).Milliseconds(),
	})
}

func (c *Control) signIn(phone, token string) (*structpb.Struct, error) {
	if phone == "" {
		phone = c.account
	}
	if phone != c.account {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "daemon serves %s, not %s", c.account, phone)
	}
	if err := c.session.SignIn(phone, token); err != nil {
		return nil, invalid(err.Error())
	}
	return empty(nil)
}

func (c *Control) refresh(ctx context.Context, args map[string]any) error {
	hashKey := stringArg(args, "hash_key")
	switch collection := stringArg(args, "collection"); collection {
	case "":
		return c.engine.RefreshAll(ctx, boolArg(args, "reorder"))
	case "videos":
		return c.engine.RefreshVideos(ctx, boolArg(args, "reorder"))
	case "video":
		return c.engine.RefreshVideo(ctx, hashKey)
	case "members":
		return c.engine.RefreshMembers(ctx, hashKey)
	case "activities":
		return c.engine.RefreshActivities(ctx)
	case "favorites":
		return c.engine.RefreshFavorites(ctx)
	case "contacts":
		return c.engine.RefreshContacts(ctx)
	case "thumbnail":
		return c.engine.RefreshThumbnail(ctx, stringArg(args, "phone"))
	default:
		return invalid(fmt.Sprintf("unknown collection %q", collection))
	}
}

func (c *Control) video(args map[string]any) (*structpb.Struct, error) {
	hashKey := stringArg(args, "hash_key")
	g := c.pool.Graph()
	v, ok := g.Video(hashKey)
	if !ok {
		return nil, fmt.Errorf("video %s: %w", hashKey, store.ErrNotFound)
	}
	fields := VideoFields(v)
	clips := g.Clips(hashKey)
	members := g.Members(hashKey)
	clipList := make([]any, len(clips))
	for i, cl := range clips {
		clipList[i] = ClipFields(cl)
	}
	memberList := make([]any, len(members))
	for i, m := range members {
		memberList[i] = MemberFields(m)
	}
	fields["clips"] = clipList
	fields["members"] = memberList
	return structpb.NewStruct(fields)
}

func empty(err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{}, nil
}

func invalid(msg string) error {
	return grpcstatus.Error(codes.InvalidArgument, msg)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func stringsArg(args map[string]any, key string) []string {
	list, _ := args[key].([]any)
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// toStatus maps domain errors to gRPC codes.
func toStatus(method string, err error) error {
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.FromContextError(err).Err()
	case errors.Is(err, pool.ErrNotOpen), errors.Is(err, pool.ErrClosed):
		code = codes.Unavailable
	case errors.Is(err, store.ErrNotFound), errors.Is(err, remote.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, outbox.ErrNotOwner):
		code = codes.PermissionDenied
	case errors.Is(err, outbox.ErrUnconfirmed):
		code = codes.FailedPrecondition
	case errors.Is(err, remote.ErrUnauthorized), errors.Is(err, session.ErrSignedOut):
		code = codes.Unauthenticated
	}
	return grpcstatus.Errorf(code, "%s: %v", method, err)
}
