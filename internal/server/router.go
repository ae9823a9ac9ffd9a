package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/streamnight/nextup/internal/auth"
	"github.com/streamnight/nextup/internal/catalog"
	"github.com/streamnight/nextup/internal/fault"
	"github.com/streamnight/nextup/internal/giveaway"
	"github.com/streamnight/nextup/internal/media"
	"github.com/streamnight/nextup/internal/users"
	"github.com/streamnight/nextup/internal/vote"
	"go.uber.org/zap"
)

const sessionContextKey = "nextup_session"

var (
	errMissingResolver        = errors.New("auth resolver dependency required")
	errMissingTwitchClient    = errors.New("twitch client dependency required")
	errMissingSessionIssuer   = errors.New("session issuer dependency required")
	errMissingUsersService    = errors.New("users service dependency required")
	errMissingCatalogService  = errors.New("catalog service dependency required")
	errMissingVoteService     = errors.New("vote service dependency required")
	errMissingGiveawayService = errors.New("giveaway service dependency required")
)

// TwitchGateway is the identity-provider surface the router needs for the
// sign-in flow.
type TwitchGateway interface {
	AuthorizeURL() string
	Exchange(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (auth.TwitchProfile, error)
}

// MetadataLookup resolves catalog metadata by external app id.
type MetadataLookup interface {
	Fetch(ctx context.Context, appID string) (catalog.Metadata, error)
}

// Dependencies wires the HTTP layer to the services behind it.
type Dependencies struct {
	Resolver        *auth.Resolver
	Twitch          TwitchGateway
	Sessions        *auth.SessionIssuer
	UsersService    *users.Service
	CatalogService  *catalog.Service
	Metadata        MetadataLookup
	VoteService     *vote.Service
	GiveawayService *giveaway.Service
	Media           *media.Store
	AllowedOrigins  []string
	Logger          *zap.Logger
}

// NewHTTPHandler builds the gin router for the companion API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}
	if deps.Twitch == nil {
		return nil, errMissingTwitchClient
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionIssuer
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.CatalogService == nil {
		return nil, errMissingCatalogService
	}
	if deps.VoteService == nil {
		return nil, errMissingVoteService
	}
	if deps.GiveawayService == nil {
		return nil, errMissingGiveawayService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Twitch-User-ID", "X-Game-Key"},
		MaxAge:       12 * time.Hour,
	}
	if len(deps.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = deps.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"*"}
	}
	router.Use(cors.New(corsConfig))

	handler := &httpHandler{
		resolver:  deps.Resolver,
		twitch:    deps.Twitch,
		sessions:  deps.Sessions,
		users:     deps.UsersService,
		entries:   deps.CatalogService,
		metadata:  deps.Metadata,
		votes:     deps.VoteService,
		giveaways: deps.GiveawayService,
		media:     deps.Media,
		logger:    logger,
	}

	if deps.Media != nil {
		router.Static("/images", deps.Media.Root())
	}

	router.GET("/auth/twitch", handler.handleAuthRedirect)
	router.GET("/auth/twitch/callback", handler.handleAuthCallback)
	router.GET("/auth/validate", handler.handleValidate)

	router.GET("/voting/entries", handler.handleListVotingEntries)
	router.GET("/voting/tallies", handler.handleTallies)
	if deps.Metadata != nil {
		router.GET("/metadata/:appID", handler.handleMetadata)
	}
	router.GET("/giveaways/entries", handler.handleListGiveaways)

	viewer := router.Group("/")
	viewer.Use(handler.authenticate(false))
	viewer.GET("/vote", handler.handleUserVote)
	viewer.PUT("/vote", handler.handleCast)
	viewer.PUT("/vote/remove", handler.handleRemove)
	viewer.PUT("/vote/super", handler.handleSuper)
	viewer.PUT("/giveaways/redeem/:id", handler.handleRedeem)
	viewer.GET("/keys", handler.handleOwnKeys)

	admin := router.Group("/")
	admin.Use(handler.authenticate(true))
	admin.POST("/voting/entries", handler.handleAddVotingEntry)
	admin.PUT("/voting/entries/:id", handler.handleUpdateVotingEntry)
	admin.DELETE("/voting/entries/:id", handler.handleDeleteVotingEntry)
	admin.PUT("/vote/reset", handler.handleResetRound)
	admin.POST("/vote/reset-counts", handler.handleResetCounts)
	admin.POST("/giveaways/entries", handler.handleAddGiveaway)
	admin.PUT("/giveaways/entries/:id", handler.handleUpdateGiveaway)
	admin.DELETE("/giveaways/entries/:id", handler.handleDeleteGiveaway)
	admin.GET("/giveaways/entries/:id/key", handler.handleEntryKey)
	admin.GET("/keys/all", handler.handleAllKeys)
	admin.PUT("/keys/:id", handler.handleUpdateRedeemedKey)
	admin.DELETE("/keys/:id", handler.handleDeleteRedeemedKey)

	return router, nil
}

type httpHandler struct {
	resolver  *auth.Resolver
	twitch    TwitchGateway
	sessions  *auth.SessionIssuer
	users     *users.Service
	entries   *catalog.Service
	metadata  MetadataLookup
	votes     *vote.Service
	giveaways *giveaway.Service
	media     *media.Store
	logger    *zap.Logger
}

// --- auth flow ---

func (h *httpHandler) handleAuthRedirect(c *gin.Context) {
	c.Redirect(http.StatusFound, h.twitch.AuthorizeURL())
}

type callbackResponse struct {
	TwitchUserID string `json:"twitchUserID"`
	AccessToken  string `json:"twitchAccessToken"`
	SessionToken string `json:"sessionToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	Username     string `json:"twitchUsername"`
	ProfileImage string `json:"profileImage"`
	IsAdmin      bool   `json:"isAdmin"`
}

func (h *httpHandler) handleAuthCallback(c *gin.Context) {
	code := c.Query("code")
	if strings.TrimSpace(code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	accessToken, err := h.twitch.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("code exchange failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	profile, err := h.twitch.FetchProfile(c.Request.Context(), accessToken)
	if err != nil {
		h.logger.Warn("profile fetch failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	account, err := h.users.Ensure(c.Request.Context(), profile.UserID, profile.DisplayName)
	if err != nil {
		h.writeFault(c, err)
		return
	}

	sessionToken, expiresIn, err := h.sessions.Issue(account.TwitchUserID, account.Username, account.IsAdmin)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, callbackResponse{
		TwitchUserID: account.TwitchUserID,
		AccessToken:  accessToken,
		SessionToken: sessionToken,
		ExpiresIn:    expiresIn,
		Username:     account.Username,
		ProfileImage: profile.ProfileImageURL,
		IsAdmin:      account.IsAdmin,
	})
}

func (h *httpHandler) handleValidate(c *gin.Context) {
	requireAdmin := c.Query("admin") == "true"
	_, err := h.resolver.Resolve(c.Request.Context(), bearerToken(c), c.GetHeader("X-Twitch-User-ID"), requireAdmin)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user successfully validated"})
}

func (h *httpHandler) authenticate(requireAdmin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := h.resolver.Resolve(c.Request.Context(), bearerToken(c), c.GetHeader("X-Twitch-User-ID"), requireAdmin)
		if err != nil {
			kind := fault.KindOf(err)
			c.AbortWithStatusJSON(statusForKind(kind), gin.H{"error": string(kind)})
			return
		}
		c.Set(sessionContextKey, session)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) auth.Session {
	value, _ := c.Get(sessionContextKey)
	session, _ := value.(auth.Session)
	return session
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	for _, scheme := range []string{"Bearer ", "OAuth "} {
		if strings.HasPrefix(header, scheme) {
			return strings.TrimSpace(strings.TrimPrefix(header, scheme))
		}
	}
	return ""
}

// --- voting ---

type votingBoardResponse struct {
	Entries       []catalog.VotingEntry `json:"entries"`
	VotingEnabled bool                  `json:"votingEnabled"`
	SuperVotedID  uint                  `json:"superVotedID"`
	SuperVoteCost int64                 `json:"superVoteCost"`
}

func (h *httpHandler) handleListVotingEntries(c *gin.Context) {
	var active *bool
	if raw := c.Query("active"); raw != "" {
		value := raw == "true"
		active = &value
	}
	entries, err := h.entries.ListEntries(c.Request.Context(), active)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	status, err := h.votes.Status(c.Request.Context())
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, votingBoardResponse{
		Entries:       entries,
		VotingEnabled: status.VotingEnabled,
		SuperVotedID:  status.SuperVotedID,
		SuperVoteCost: status.SuperVoteCost,
	})
}

func (h *httpHandler) handleTallies(c *gin.Context) {
	tallies, err := h.votes.Tallies(c.Request.Context())
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, tallies)
}

func (h *httpHandler) handleMetadata(c *gin.Context) {
	meta, err := h.metadata.Fetch(c.Request.Context(), c.Param("appID"))
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (h *httpHandler) handleUserVote(c *gin.Context) {
	session := sessionFrom(c)
	entryID, err := h.votes.UserVote(c.Request.Context(), session.TwitchUserID)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entryID": entryID})
}

type votePayload struct {
	EntryID uint `json:"entryID"`
}

func (h *httpHandler) handleCast(c *gin.Context) {
	var payload votePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.EntryID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	session := sessionFrom(c)
	outcome, err := h.votes.Cast(c.Request.Context(), session.TwitchUserID, payload.EntryID)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": outcome.Changed})
}

func (h *httpHandler) handleRemove(c *gin.Context) {
	session := sessionFrom(c)
	outcome, err := h.votes.Remove(c.Request.Context(), session.TwitchUserID)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": outcome.Changed})
}

func (h *httpHandler) handleSuper(c *gin.Context) {
	var payload votePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.EntryID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	session := sessionFrom(c)
	if err := h.votes.Super(c.Request.Context(), session.TwitchUserID, payload.EntryID); err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

type resetPayload struct {
	EntryID uint `json:"entryID"`
}

func (h *httpHandler) handleResetRound(c *gin.Context) {
	var payload resetPayload
	_ = c.ShouldBindJSON(&payload)
	outcome, err := h.votes.ResetRound(c.Request.Context(), payload.EntryID)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": outcome.Closed, "reopened": outcome.Reopened})
}

type resetCountsPayload struct {
	EntryID    uint `json:"entryID"`
	ResetTotal bool `json:"resetTotal"`
}

func (h *httpHandler) handleResetCounts(c *gin.Context) {
	var payload resetCountsPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.EntryID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.votes.ResetCounts(c.Request.Context(), payload.EntryID, payload.ResetTotal); err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "counts reset"})
}

// --- voting entry administration ---

func (h *httpHandler) handleAddVotingEntry(c *gin.Context) {
	input, err := h.votingInputFrom(c)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	entry, err := h.entries.AddEntry(c.Request.Context(), input)
	if err != nil {
		h.removeMedia(input.Cover, input.Header)
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) handleUpdateVotingEntry(c *gin.Context) {
	entryID, ok := idParam(c)
	if !ok {
		return
	}
	input, err := h.votingInputFrom(c)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	previous, err := h.entries.UpdateEntry(c.Request.Context(), entryID, input)
	if err != nil {
		h.removeMedia(input.Cover, input.Header)
		h.writeFault(c, err)
		return
	}
	h.retireReplacedMedia(previous.Cover, input.Cover, input.RemoveCover)
	h.retireReplacedMedia(previous.Header, input.Header, input.RemoveHeader)
	c.JSON(http.StatusOK, gin.H{"message": "entry updated"})
}

func (h *httpHandler) handleDeleteVotingEntry(c *gin.Context) {
	entryID, ok := idParam(c)
	if !ok {
		return
	}
	removed, err := h.entries.DeleteEntry(c.Request.Context(), entryID)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	h.removeMedia(removed.Cover, removed.Header)
	c.JSON(http.StatusOK, gin.H{"message": "entry deleted"})
}

func (h *httpHandler) votingInputFrom(c *gin.Context) (catalog.VotingEntryInput, error) {
	input := catalog.VotingEntryInput{
		AppID:        c.PostForm("appID"),
		Title:        c.PostForm("title"),
		Description:  c.PostForm("description"),
		TrailerURL:   c.PostForm("trailer"),
		StoreURL:     c.PostForm("store"),
		IsActive:     c.PostForm("isActive") == "true",
		RemoveCover:  c.PostForm("cover") == "remove",
		RemoveHeader: c.PostForm("header") == "remove",
	}
	cover, header, err := h.saveUploads(c, media.SectionVoting)
	if err != nil {
		return catalog.VotingEntryInput{}, err
	}
	input.Cover = cover
	input.Header = header
	return input, nil
}

// --- giveaways ---

func (h *httpHandler) handleListGiveaways(c *gin.Context) {
	entries, err := h.giveaways.ListEntries(c.Request.Context())
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *httpHandler) handleAddGiveaway(c *gin.Context) {
	input, err := h.giveawayInputFrom(c)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	entry, err := h.giveaways.AddEntry(c.Request.Context(), input)
	if err != nil {
		h.removeMedia(input.Cover, input.Header)
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) handleUpdateGiveaway(c *gin.Context) {
	entryID, ok := idParam(c)
	if !ok {
		return
	}
	input, err := h.giveawayInputFrom(c)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	previous, err := h.giveaways.UpdateEntry(c.Request.Context(), entryID, input)
	if err != nil {
		h.removeMedia(input.Cover, input.Header)
		h.writeFault(c, err)
		return
	}
	h.retireReplacedMedia(previous.Cover, input.Cover, input.RemoveCover)
	h.retireReplacedMedia(previous.Header, input.Header, input.RemoveHeader)
	c.JSON(http.StatusOK, gin.H{"message": "entry updated"})
}

func (h *httpHandler) handleDeleteGiveaway(c *gin.Context) {
	entryID, ok := idParam(c)
	if !ok {
		return
	}
	removed, err := h.giveaways.DeleteEntry(c.Request.Context(), entryID)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	h.removeMedia(removed.Cover, removed.Header)
	c.JSON(http.StatusOK, gin.H{"message": "entry deleted"})
}

func (h *httpHandler) handleEntryKey(c *gin.Context) {
	entryID, ok := idParam(c)
	if !ok {
		return
	}
	key, err := h.giveaways.EntryKey(c.Request.Context(), entryID)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gameKey": key})
}

func (h *httpHandler) giveawayInputFrom(c *gin.Context) (giveaway.GiveawayInput, error) {
	cost, _ := strconv.ParseInt(c.PostForm("cost"), 10, 64)
	input := giveaway.GiveawayInput{
		AppID:        c.PostForm("appID"),
		Title:        c.PostForm("title"),
		Description:  c.PostForm("description"),
		TrailerURL:   c.PostForm("trailer"),
		StoreURL:     c.PostForm("store"),
		Cost:         cost,
		Key:          c.GetHeader("X-Game-Key"),
		RemoveCover:  c.PostForm("cover") == "remove",
		RemoveHeader: c.PostForm("header") == "remove",
	}
	cover, header, err := h.saveUploads(c, media.SectionGiveaways)
	if err != nil {
		return giveaway.GiveawayInput{}, err
	}
	input.Cover = cover
	input.Header = header
	return input, nil
}

// --- redemption ---

func (h *httpHandler) handleRedeem(c *gin.Context) {
	entryID, ok := idParam(c)
	if !ok {
		return
	}
	session := sessionFrom(c)
	redemption, err := h.giveaways.Redeem(c.Request.Context(), session.TwitchUserID, entryID)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, redemption)
}

func (h *httpHandler) handleOwnKeys(c *gin.Context) {
	session := sessionFrom(c)
	records, err := h.giveaways.RedeemedForUser(c.Request.Context(), session.TwitchUserID)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *httpHandler) handleAllKeys(c *gin.Context) {
	records, err := h.giveaways.AllRedeemed(c.Request.Context())
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *httpHandler) handleUpdateRedeemedKey(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.giveaways.UpdateRedeemedKey(c.Request.Context(), id, c.GetHeader("X-Game-Key")); err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "key updated"})
}

func (h *httpHandler) handleDeleteRedeemedKey(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.giveaways.DeleteRedeemedKey(c.Request.Context(), id); err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "key deleted"})
}

// --- helpers ---

func (h *httpHandler) saveUploads(c *gin.Context, section string) (string, string, error) {
	if h.media == nil {
		return "", "", nil
	}
	cover := ""
	if file, err := c.FormFile("cover"); err == nil && file != nil {
		saved, err := h.media.Save(section, file)
		if err != nil {
			return "", "", fault.Internal("server.upload", err)
		}
		cover = saved
	}
	header := ""
	if file, err := c.FormFile("header"); err == nil && file != nil {
		saved, err := h.media.Save(section, file)
		if err != nil {
			h.removeMedia(cover)
			return "", "", fault.Internal("server.upload", err)
		}
		header = saved
	}
	return cover, header, nil
}

func (h *httpHandler) removeMedia(paths ...string) {
	if h.media != nil {
		h.media.Remove(paths...)
	}
}

// retireReplacedMedia deletes the previous asset once a new upload or an
// explicit removal displaced it.
func (h *httpHandler) retireReplacedMedia(previous, replacement string, removed bool) {
	if previous == "" {
		return
	}
	if removed || (replacement != "" && replacement != previous) {
		h.removeMedia(previous)
	}
}

func idParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || value == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return uint(value), true
}

func (h *httpHandler) writeFault(c *gin.Context, err error) {
	kind := fault.KindOf(err)
	if kind == fault.KindInternal {
		h.logger.Error("request failed", zap.Error(err))
	}
	message := "internal server error"
	var fe *fault.Error
	if errors.As(err, &fe) {
		message = fe.Message()
	}
	c.JSON(statusForKind(kind), gin.H{"error": string(kind), "message": message})
}

func statusForKind(kind fault.Kind) int {
	switch kind {
	case fault.KindUnauthorized:
		return http.StatusUnauthorized
	case fault.KindForbidden:
		return http.StatusForbidden
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindConflict:
		return http.StatusConflict
	case fault.KindInsufficientFunds:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
