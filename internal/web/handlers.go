package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/calvinalkan/docbase/internal/document"
	"github.com/calvinalkan/docbase/internal/engine"
)

// Form actions of POST /api/mutations.
const (
	formCreateOrUpdate = "create-or-update"
	formDelete         = "delete"
	formRestore        = "restore-version"
)

const maxImportBytes = 32 << 20

const sessionKey = "kb.session"

var (
	errUnknownAction  = fmt.Errorf("%w: unknown action", document.ErrValidation)
	errBadIndex       = fmt.Errorf("%w: version index must be an integer", document.ErrValidation)
	errUploadRequired = fmt.Errorf("%w: file upload failed", document.ErrValidation)
)

type boundSession struct {
	id      string
	session *Session
}

// mutationResponse is the JSON body of a mutation answered with
// Accept: application/json.
type mutationResponse struct {
	Success  bool   `json:"success"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

// sessionMiddleware loads the session named by the cookie or starts a new one.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		id, _ := c.Cookie(SessionCookie)

		var sess *Session

		if id != "" {
			var err error

			sess, err = s.sessions.Get(ctx, id)
			if err != nil {
				s.logger.ErrorContext(ctx, "loading session", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})

				return
			}
		}

		if sess == nil {
			var err error

			id, sess, err = s.newSession(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "creating session", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})

				return
			}

			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, id, int(s.ttl.Seconds()), "/", "", false, true)
		}

		c.Set(sessionKey, &boundSession{id: id, session: sess})
		c.Next()
	}
}

func (s *Server) newSession(ctx context.Context) (string, *Session, error) {
	token, err := newToken()
	if err != nil {
		return "", nil, err
	}

	sess := &Session{CSRFToken: token}
	if s.startup != nil {
		notice := *s.startup
		sess.Notice = &notice
	}

	id := uuid.NewString()

	err = s.sessions.Put(ctx, id, sess)
	if err != nil {
		return "", nil, err
	}

	return id, sess, nil
}

func currentSession(c *gin.Context) *boundSession {
	return c.MustGet(sessionKey).(*boundSession)
}

// session returns the anti-forgery token and hands out the pending
// notification exactly once.
func (s *Server) session(c *gin.Context) {
	bound := currentSession(c)
	notice := bound.session.Notice

	if notice != nil {
		bound.session.Notice = nil

		err := s.sessions.Put(c.Request.Context(), bound.id, bound.session)
		if err != nil {
			s.logger.ErrorContext(c.Request.Context(), "saving session", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})

			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"csrf_token": bound.session.CSRFToken, "notification": notice})
}

func (s *Server) listDocuments(c *gin.Context) {
	ctx := c.Request.Context()

	if category, ok := c.GetQuery("category"); ok {
		docs := s.engine.Repository(ctx).ByCategory(category)
		if docs == nil {
			docs = []document.Document{}
		}

		c.JSON(http.StatusOK, docs)

		return
	}

	c.JSON(http.StatusOK, s.engine.List(ctx))
}

func (s *Server) getDocument(c *gin.Context) {
	doc, err := s.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": engine.NoticeFor(engine.ActionUpdate, 0, err).Message})

		return
	}

	c.JSON(http.StatusOK, doc)
}

func (s *Server) export(c *gin.Context) {
	data, err := s.engine.Export(c.Request.Context())
	if err != nil {
		s.logger.ErrorContext(c.Request.Context(), "export failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": engine.StorageFailureMessage})

		return
	}

	name := "docbase-export-" + s.now().Format("2006-01-02") + ".json"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) mutation(c *gin.Context) {
	ctx := c.Request.Context()
	bound := currentSession(c)
	action := c.PostForm("action")
	id := strings.TrimSpace(c.PostForm("doc_id"))

	redirect := "/"
	if action == formCreateOrUpdate && id != "" {
		redirect = anchor(id)
	}

	if !tokenMatches(bound.session.CSRFToken, c.PostForm("csrf_token")) {
		s.logger.WarnContext(ctx, "anti-forgery token mismatch", "action", action, "client_ip", c.ClientIP())
		s.respond(c, engine.ActionUpdate, 0, ErrForbidden, redirect)

		return
	}

	switch action {
	case formCreateOrUpdate:
		in := document.Input{
			Category:    c.PostForm("category"),
			Title:       c.PostForm("title"),
			Description: c.PostForm("description"),
			Content:     c.PostForm("content"),
			Tags:        c.PostForm("tags"),
		}

		if id == "" {
			doc, err := s.engine.Create(ctx, in)
			if err == nil {
				redirect = anchor(doc.ID)
			}

			s.respond(c, engine.ActionCreate, 0, err, redirect)

			return
		}

		_, err := s.engine.Update(ctx, id, in)
		s.respond(c, engine.ActionUpdate, 0, err, redirect)
	case formDelete:
		err := document.ErrIDRequired
		if id != "" {
			err = s.engine.Delete(ctx, id)
		}

		s.respond(c, engine.ActionDelete, 0, err, redirect)
	case formRestore:
		err := document.ErrIDRequired

		if id != "" {
			var index int

			index, err = strconv.Atoi(strings.TrimSpace(c.DefaultPostForm("version_index", "0")))
			if err != nil {
				err = errBadIndex
			} else {
				_, err = s.engine.RestoreVersion(ctx, id, index)
			}
		}

		s.respond(c, engine.ActionRestore, 0, err, redirect)
	default:
		s.respond(c, engine.Action(action), 0, errUnknownAction, redirect)
	}
}

func (s *Server) importDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	bound := currentSession(c)

	if !tokenMatches(bound.session.CSRFToken, c.PostForm("csrf_token")) {
		s.logger.WarnContext(ctx, "anti-forgery token mismatch", "action", engine.ActionImport, "client_ip", c.ClientIP())
		s.respond(c, engine.ActionImport, 0, ErrForbidden, "/")

		return
	}

	data, err := readUpload(c)
	if err != nil {
		s.logger.DebugContext(ctx, "import upload rejected", "error", err)
		s.respond(c, engine.ActionImport, 0, errUploadRequired, "/")

		return
	}

	count, err := s.engine.BulkImport(ctx, data)
	s.respond(c, engine.ActionImport, count, err, "/")
}

func readUpload(c *gin.Context) ([]byte, error) {
	header, err := c.FormFile("import_file")
	if err != nil {
		return nil, err
	}

	f, err := header.Open()
	if err != nil {
		return nil, err
	}

	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxImportBytes+1))
	if err != nil {
		return nil, err
	}

	if len(data) > maxImportBytes {
		return nil, errors.New("import file too large")
	}

	return data, nil
}

// respond answers a mutation. JSON clients get the outcome in the body; all
// others are redirected with the notification queued in their session.
func (s *Server) respond(c *gin.Context, action engine.Action, count int, err error, redirect string) {
	notice := engine.NoticeFor(action, count, err)

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}

	if wantsJSON(c) {
		c.JSON(status, mutationResponse{
			Success:  notice.Success(),
			Type:     notice.Type,
			Message:  notice.Message,
			Redirect: redirect,
		})

		return
	}

	bound := currentSession(c)
	bound.session.Notice = &notice

	putErr := s.sessions.Put(c.Request.Context(), bound.id, bound.session)
	if putErr != nil {
		s.logger.ErrorContext(c.Request.Context(), "saving session", "error", putErr)
	}

	c.Redirect(http.StatusSeeOther, redirect)
}

func statusFor(err error) int {
	switch engine.Classify(err) {
	case engine.KindValidation:
		return http.StatusBadRequest
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

func anchor(id string) string {
	return "/#doc_" + id
}
