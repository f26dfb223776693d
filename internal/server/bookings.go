package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/neuron-e/api-boukii-sub004/internal/actorcontext"
	"github.com/neuron-e/api-boukii-sub004/internal/authorization"
	bookingdomain "github.com/neuron-e/api-boukii-sub004/internal/booking/domain"
	"github.com/shopspring/decimal"
)

type reserveRequest struct {
	IntervalID   *snowflake.ID  `json:"interval_id"`
	SubgroupID   snowflake.ID   `json:"subgroup_id"`
	DateIDs      []snowflake.ID `json:"date_ids"`
	ClientID     snowflake.ID   `json:"client_id"`
	Participants []snowflake.ID `json:"participants"`
	PromoCode    string         `json:"promo_code"`
}

func (s *Server) ReserveCourse(c *gin.Context) {
	courseID, ok := pathID(c, "course_id")
	if !ok {
		return
	}

	var body reserveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// clients book for their own account unless they name another one
	clientID := body.ClientID
	if clientID == 0 {
		if actor, ok := actorcontext.FromContext(c.Request.Context()); ok {
			clientID = actor.ClientID
		}
	}

	if clientID != 0 {
		limit := s.limiter.Allow(c.Request.Context(), clientID, len(body.DateIDs))
		if !limit.Allowed {
			if limit.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limit.RetryAfter.Seconds()))))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
	}

	result, err := s.bookingSvc.Reserve(c.Request.Context(), bookingdomain.ReserveRequest{
		CourseID:     courseID,
		IntervalID:   body.IntervalID,
		SubgroupID:   body.SubgroupID,
		DateIDs:      body.DateIDs,
		ClientID:     clientID,
		Participants: body.Participants,
		PromoCode:    strings.TrimSpace(body.PromoCode),
	})
	if err != nil {
		var rej *bookingdomain.RejectionError
		if errors.As(err, &rej) {
			c.JSON(rejectionStatus(rej.Kind), gin.H{"data": result})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) GetBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor, ok := actorcontext.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	booking, err := s.bookingSvc.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !actor.IsSelf(booking.ClientID) {
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectBooking, authorization.ActionBookingView); err != nil {
			// hide bookings of other clients
			AbortWithError(c, bookingdomain.ErrBookingNotFound)
			return
		}
	}

	users, err := s.bookingSvc.ListUsers(c.Request.Context(), bookingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"booking": booking, "users": users}})
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CancelBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body cancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	booking, err := s.bookingSvc.Cancel(c.Request.Context(), bookingdomain.CancelRequest{
		BookingID: bookingID,
		Reason:    strings.TrimSpace(body.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

type repriceBookingRequest struct {
	PromoCode        *string             `json:"promo_code"`
	ManualFinalPrice decimal.NullDecimal `json:"manual_final_price"`
	Note             string              `json:"note"`
}

func (s *Server) RepriceBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body repriceBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.bookingSvc.Reprice(c.Request.Context(), bookingdomain.RepriceRequest{
		BookingID:        bookingID,
		PromoCode:        body.PromoCode,
		ManualFinalPrice: body.ManualFinalPrice,
		Note:             strings.TrimSpace(body.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type confirmPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"payment_reference"`
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body confirmPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	booking, err := s.bookingSvc.ConfirmPayment(c.Request.Context(), bookingdomain.ConfirmPaymentRequest{
		BookingID: bookingID,
		Amount:    body.Amount,
		Reference: strings.TrimSpace(body.Reference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}
