package handlers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/models"
	"storefront/internal/notify"
)

const (
	otpTTL         = 10 * time.Minute
	otpSendTimeout = 15 * time.Second
	// a code is withdrawn after this many wrong guesses
	maxOTPAttempts = 5
)

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

type resetPasswordRequest struct {
	Email    string `json:"email" binding:"required"`
	OTP      string `json:"otp" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// generateOTP returns a uniformly random six digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func validOTPFilter(email, otp string) bson.M {
	return bson.M{
		"email":                    normalizeEmail(email),
		"resetPasswordOTP":         hashToken(otp),
		"resetPasswordOTPExpires":  bson.M{"$gt": time.Now()},
		"resetPasswordOTPAttempts": bson.M{"$not": bson.M{"$gte": maxOTPAttempts}},
	}
}

var clearOTP = bson.M{"resetPasswordOTP": "", "resetPasswordOTPExpires": "", "resetPasswordOTPAttempts": ""}

// recordOTPMiss counts a wrong code against the user's pending reset and
// withdraws the code once maxOTPAttempts is reached.
func recordOTPMiss(ctx context.Context, db *mongo.Database, email string) error {
	users := db.Collection("users")

	var user models.User
	err := users.FindOneAndUpdate(ctx,
		bson.M{"email": normalizeEmail(email), "resetPasswordOTP": bson.M{"$exists": true}},
		bson.M{"$inc": bson.M{"resetPasswordOTPAttempts": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.ResetOTPAttempts < maxOTPAttempts {
		return nil
	}

	log.Println("[AUTH] [WARN] reset code withdrawn after too many attempts for user:", user.ID.Hex())
	_, err = users.UpdateByID(ctx, user.ID, bson.M{"$unset": clearOTP})
	return err
}

/* =========================
   POST /api/auth/forgot-password
========================= */

// ForgotPassword mails a one-time code. The mail goes out before responding
// so a failed send can be reported and the code withdrawn.
func ForgotPassword(db *mongo.Database, sink notify.Sink, templates notify.Templates) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/forgot-password"
		defer handlePanic(c, route)

		var req forgotPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var user models.User
		err := db.Collection("users").FindOne(ctx, bson.M{"email": normalizeEmail(req.Email)}).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "User not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		otp, err := generateOTP()
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		if _, err := db.Collection("users").UpdateByID(ctx, user.ID, bson.M{"$set": bson.M{
			"resetPasswordOTP":         hashToken(otp),
			"resetPasswordOTPExpires":  time.Now().Add(otpTTL),
			"resetPasswordOTPAttempts": 0,
		}}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		sendCtx, sendCancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), otpSendTimeout)
		defer sendCancel()

		if err := sink.Send(sendCtx, templates.PasswordReset(user.Email, otp)); err != nil {
			log.Printf("[%s] otp mail to %s failed: %v", route, user.Email, err)
			if _, clearErr := db.Collection("users").UpdateByID(sendCtx, user.ID, bson.M{"$unset": clearOTP}); clearErr != nil {
				log.Printf("[%s] clearing otp failed: %v", route, clearErr)
			}
			respondWithError(c, http.StatusInternalServerError, route, "Email could not be sent")
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "OTP sent to your email"})
	}
}

/* =========================
   POST /api/auth/verify-otp
========================= */

func VerifyOTP(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/verify-otp"
		defer handlePanic(c, route)

		var req verifyOTPRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		count, err := db.Collection("users").CountDocuments(ctx, validOTPFilter(req.Email, req.OTP))
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		if count == 0 {
			if err := recordOTPMiss(ctx, db, req.Email); err != nil {
				log.Printf("[%s] recording failed attempt: %v", route, err)
			}
			respondWithError(c, http.StatusBadRequest, route, "Invalid or expired OTP")
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "OTP verified successfully"})
	}
}

/* =========================
   POST /api/auth/reset-password
========================= */

// ResetPassword consumes the code, stores the new password and revokes the
// user's refresh tokens.
func ResetPassword(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/reset-password"
		defer handlePanic(c, route)

		var req resetPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var user models.User
		err = db.Collection("users").FindOneAndUpdate(ctx, validOTPFilter(req.Email, req.OTP), bson.M{
			"$set":   bson.M{"password": string(hash), "updatedAt": time.Now()},
			"$unset": clearOTP,
		}).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			if err := recordOTPMiss(ctx, db, req.Email); err != nil {
				log.Printf("[%s] recording failed attempt: %v", route, err)
			}
			respondWithError(c, http.StatusBadRequest, route, "Invalid or expired OTP")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		if _, err := db.Collection("refresh_tokens").UpdateMany(ctx,
			bson.M{"user": user.ID, "revoked": false},
			bson.M{"$set": bson.M{"revoked": true}},
		); err != nil {
			log.Printf("[%s] revoking refresh tokens failed: %v", route, err)
		}

		log.Println("[AUTH] [INFO] password reset for user:", user.ID.Hex())
		c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
	}
}
