package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/metrics"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/presence"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
)

const (
	defaultMaxContentLength = 4000
	defaultHistoryPage      = 50
	defaultHistoryMax       = 100
	defaultPresenceTTL      = 60 * time.Second

	// detachedTimeout bounds cleanup work that must outlive the request context.
	detachedTimeout = 5 * time.Second
)

// Options tunes the protocol handler.
type Options struct {
	MaxContentLength int
	HistoryPageSize  int
	HistoryMaxPage   int
	PresenceTTL      time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = defaultMaxContentLength
	}
	if o.HistoryPageSize <= 0 {
		o.HistoryPageSize = defaultHistoryPage
	}
	if o.HistoryMaxPage <= 0 {
		o.HistoryMaxPage = defaultHistoryMax
	}
	if o.HistoryPageSize > o.HistoryMaxPage {
		o.HistoryPageSize = o.HistoryMaxPage
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = defaultPresenceTTL
	}
	return o
}

// Service is the chat protocol handler. It validates requests, mutates the store
// and publishes the resulting events through the hub. Both the websocket and the
// HTTP surfaces call into it, so authorization lives in one place.
type Service struct {
	store    store.Store
	hub      *Hub
	presence presence.Registry
	log      *zerolog.Logger
	opts     Options

	// locks serializes persist+publish per conversation so events leave this
	// process in the order rows were written.
	locks *keyedMutex
	now   func() time.Time
}

// NewService wires the protocol handler.
func NewService(st store.Store, hub *Hub, reg presence.Registry, opts Options, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:    st,
		hub:      hub,
		presence: reg,
		log:      logger,
		opts:     opts.withDefaults(),
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Connect registers an authenticated session. The first live connection of a
// user announces them online to every session in the system.
func (s *Service) Connect(ctx context.Context, c *Client) error {
	first, err := s.presence.Connect(ctx, c.UserID, c.ID)
	if err != nil {
		return err
	}
	s.hub.RegisterClient(c)
	metrics.SessionsActive.Inc()

	s.log.Debug().Str("client_id", c.ID).Str("user_id", c.UserID).Bool("first", first).Msg("session connected")
	if first {
		s.publishStatus(ctx, c.UserID, true)
	}
	return nil
}

// Disconnect tears a session down. Only the last live connection of a user
// announces them offline. It runs on a detached context because it usually
// follows a cancelled request.
func (s *Service) Disconnect(ctx context.Context, c *Client) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
	defer cancel()

	c.Close()
	if !s.hub.UnregisterClient(c) {
		return
	}
	metrics.SessionsActive.Dec()

	last, err := s.presence.Disconnect(ctx, c.UserID, c.ID)
	if err != nil {
		// The lease expires and the reaper emits the offline event instead.
		s.log.Error().Err(err).Str("client_id", c.ID).Str("user_id", c.UserID).Msg("presence disconnect")
		return
	}
	s.log.Debug().Str("client_id", c.ID).Str("user_id", c.UserID).Bool("last", last).Msg("session disconnected")
	if last {
		s.publishStatus(ctx, c.UserID, false)
	}
}

func (s *Service) publishStatus(ctx context.Context, userID string, online bool) {
	metrics.RecordPresence(online)
	if err := s.hub.PublishPresence(ctx, &Event{Kind: EventUserStatus, UserID: userID, Online: online}); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Bool("online", online).Msg("publish presence")
	}
}

// Run refreshes the presence leases of local sessions and reaps connections
// left behind by crashed processes until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PresenceTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maintainPresence(ctx)
		}
	}
}

func (s *Service) maintainPresence(ctx context.Context) {
	for _, c := range s.hub.Clients() {
		s.refreshLease(ctx, c)
	}

	offline, err := s.presence.Reap(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("reap presence")
		return
	}
	for _, userID := range offline {
		s.log.Info().Str("user_id", userID).Msg("reaped stale presence")
		s.publishStatus(ctx, userID, false)
	}
}

// refreshLease keeps a local session's lease alive. A lease reaped during an outage is
// put back and the user announced online again. The re-add can race with the
// session's own Disconnect, so a session that is no longer registered is removed
// again and only the net transition is published.
func (s *Service) refreshLease(ctx context.Context, c *Client) {
	first, err := s.presence.Refresh(ctx, c.UserID, c.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("client_id", c.ID).Msg("refresh presence lease")
		return
	}

	if s.hub.Registered(c) {
		if first {
			s.log.Info().Str("user_id", c.UserID).Msg("restored reaped presence")
			s.publishStatus(ctx, c.UserID, true)
		}
		return
	}

	last, err := s.presence.Disconnect(ctx, c.UserID, c.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("client_id", c.ID).Msg("drop refreshed lease")
		return
	}
	if last && !first {
		s.publishStatus(ctx, c.UserID, false)
	}
}

// OnlineUsers reports which of userIDs have a live connection anywhere.
func (s *Service) OnlineUsers(ctx context.Context, userIDs ...string) (map[string]bool, error) {
	online, err := s.presence.Online(ctx, userIDs...)
	if err != nil {
		s.log.Error().Err(err).Msg("query presence")
		return nil, coreError(ErrCodeInternal, "internal error", ErrInternal)
	}
	return online, nil
}

// UserProfile is a user as seen by another user.
type UserProfile struct {
	User   *store.User
	Online bool
	// Contact is true when the viewer shares a conversation with the user or is the user.
	Contact bool
}

// GetUser returns the user's profile and whether they are online, as seen by viewerID.
func (s *Service) GetUser(ctx context.Context, viewerID, userID string) (*UserProfile, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, s.storeError(err, "user not found")
	}
	online, err := s.OnlineUsers(ctx, userID)
	if err != nil {
		return nil, err
	}

	contact := viewerID == userID
	if !contact {
		contact, err = s.store.SharesConversation(ctx, viewerID, userID)
		if err != nil {
			return nil, s.storeError(err, "user not found")
		}
	}
	return &UserProfile{User: user, Online: online[userID], Contact: contact}, nil
}

// Handle executes one inbound session command. Results and failures go to the
// calling session only.
func (s *Service) Handle(ctx context.Context, c *Client, cmd *Command) {
	var err error

	switch cmd.Kind {
	case CommandJoinConversation:
		if err = s.JoinConversation(ctx, c, cmd.ConversationID); err == nil && cmd.RequestID != "" {
			c.Deliver(&Event{Kind: EventAck, RequestID: cmd.RequestID, ConversationID: cmd.ConversationID})
		}
	case CommandLeaveConversation:
		s.LeaveRoom(c, cmd.ConversationID)
	case CommandTyping:
		err = s.Typing(ctx, c, cmd.ConversationID, cmd.IsTyping)
	case CommandSendMessage:
		msg, sendErr := s.SendMessage(ctx, c.UserID, SendMessageInput{
			ConversationID: cmd.ConversationID,
			Content:        cmd.Content,
			ContentType:    cmd.ContentType,
			AttachmentURL:  cmd.AttachmentURL,
		})
		c.Deliver(&Event{
			Kind:           EventAck,
			RequestID:      cmd.RequestID,
			ConversationID: cmd.ConversationID,
			Message:        msg,
			Error:          AsCoreError(sendErr),
		})
		return
	case CommandEditMessage:
		_, err = s.EditMessage(ctx, c.UserID, cmd.MessageID, cmd.Content)
	case CommandDeleteMessage:
		err = s.DeleteMessage(ctx, c.UserID, cmd.MessageID)
	default:
		err = BadRequest("unknown command")
	}

	if err != nil {
		s.log.Debug().Err(err).Str("client_id", c.ID).Int("command", int(cmd.Kind)).Msg("command rejected")
		c.Deliver(&Event{Kind: EventError, RequestID: cmd.RequestID, Error: AsCoreError(err)})
	}
}

// storeError maps store failures onto the domain taxonomy.
func (s *Service) storeError(err error, notFoundMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound("%s", notFoundMsg)
	}
	s.log.Error().Err(err).Msg("store operation failed")
	return coreError(ErrCodeInternal, "internal error", ErrInternal)
}
