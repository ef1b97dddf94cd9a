package conn

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tobsdb/samplestore/internal/engine"
	"github.com/tobsdb/samplestore/pkg"
)

type WsRequest struct {
	Action RequestAction `json:"action"`
	ReqId  int           `json:"__tdb_client_req_id__"` // used in tdb clients
}

var Upgrader = websocket.Upgrader{
	WriteBufferSize: 1024 * 10,
	ReadBufferSize:  1024 * 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type ConnRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func tryConnect(e *engine.Engine, ctx *ConnCtx, buf []byte) error {
	var r ConnRequest
	if err := json.Unmarshal(buf, &r); err != nil {
		ctx.WriteResponse(NewErrorResponse(http.StatusBadRequest, err.Error()))
		return err
	}

	ctx.User = e.ValidateUser(r.Username, r.Password)
	if ctx.User == nil {
		ctx.WriteResponse(NewErrorResponse(http.StatusUnauthorized, "Invalid auth"))
		return nil
	}

	ctx.SetAuthed()
	ctx.WriteString("connected")
	return nil
}

// HandleConnection upgrades the request and serves it until the client goes away.
// The first message must carry the credentials of a known user.
func HandleConnection(e *engine.Engine, w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		pkg.ErrorLog("upgrade failed", err)
		return
	}

	ctx := NewConnCtx(conn)
	defer conn.Close()
	defer pkg.InfoLog("Connection closed from", conn.RemoteAddr())
	pkg.InfoLog("New connection from", conn.RemoteAddr())

	for {
		buf, err := ctx.Read()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				pkg.ErrorLog("conn read error", err)
			}
			return
		}

		if !ctx.isAuthed {
			if ctx.attempts == maxConnAttempts {
				pkg.ErrorLog("max connection attempts reached")
				return
			}

			err = tryConnect(e, ctx, buf)
			ctx.attempts += 1
			if err != nil {
				pkg.ErrorLog("conn attempt error", err)
				return
			}
			continue
		}

		var req WsRequest
		if err := json.Unmarshal(buf, &req); err != nil {
			pkg.ErrorLog("parsing request", err)
			ctx.WriteResponse(NewErrorResponse(http.StatusBadRequest, err.Error()))
			continue
		}

		started := time.Now()
		res := ActionHandler(e, req.Action, ctx.User, buf)
		res.ReqId = req.ReqId
		pkg.WithFields(pkg.Fields{
			"action":  req.Action,
			"status":  res.Status,
			"elapsed": time.Since(started),
		}).Debug("handled request")

		if err := ctx.WriteResponse(res); err != nil {
			pkg.ErrorLog("writing response", err)
			return
		}
	}
}
