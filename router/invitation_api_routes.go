package router

import (
	"context"

	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
	"sage/internal/relay"
	"sage/internal/store"
)

type invitationView struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Code      string `json:"code"`
	CreatedAt string `json:"created_at"`
}

func newInvitationView(inv *store.Invitation) invitationView {
	return invitationView{
		ID:        inv.ID,
		Email:     inv.Email,
		Code:      inv.Code,
		CreatedAt: inv.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func setInvitationAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/invitations", listInvitationsHandler(opts))
	r.POST("/invitations", createInvitationHandler(opts))
	r.DELETE("/invitations/:invitation_id", deleteInvitationHandler(opts))
}

func listInvitationsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		args := parsePageArgs(c)

		conn, err := relay.Paginate(c.Request.Context(), args.After, args.Before, args.First, args.Last,
			func(ctx context.Context, after, before *int64, limit int, backward bool) ([]relay.Row[invitationView], error) {
				invs, err := opts.Registry.Store.ListInvitations(ctx, after, before, limit, backward)
				if err != nil {
					return nil, err
				}
				rows := make([]relay.Row[invitationView], 0, len(invs))
				for i := range invs {
					rows = append(rows, relay.Row[invitationView]{ID: invs[i].ID, Node: newInvitationView(&invs[i])})
				}
				return rows, nil
			})
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, conn)
	}
}

func createInvitationHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Email string `json:"email"`
	}

	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		inv, err := opts.Registry.Auth.CreateInvitation(c.Request.Context(), req.Email)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, newInvitationView(inv))
	}
}

func deleteInvitationHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		id, err := parsePathID(c, "invitation_id")
		if err != nil {
			fail(c, err)
			return
		}
		if err := opts.Registry.Store.DeleteInvitation(c.Request.Context(), id); err != nil {
			fail(c, translateNotFound(err, "邀请不存在"))
			return
		}
		respond(c, nil)
	}
}
