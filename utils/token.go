package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// ApprovalClaim is embedded in the signed approval link mailed to the
// approver. The token identifies the order only; the decision (approve or
// reject) is made on the landing page, so it is not part of the claim.
type ApprovalClaim struct {
	PurchaseOrderId int    `json:"purchaseOrderId"`
	OrderNumber     string `json:"orderNumber"`
	jwt.StandardClaims
}

var jwtSecret = []byte(getJwtSecret())

func getJwtSecret() string {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return "Procurement-Secret"
	}
	return secret
}

func ApprovalTokenGenerate(purchaseOrderId int, orderNumber string) (string, error) {
	tokenLifespan, err := strconv.Atoi(os.Getenv("APPROVAL_TOKEN_HOUR_LIFESPAN"))
	if err != nil {
		tokenLifespan = 72
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &ApprovalClaim{
		PurchaseOrderId: purchaseOrderId,
		OrderNumber:     orderNumber,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(tokenLifespan)).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})

	token, err := t.SignedString(jwtSecret)
	if err != nil {
		return "", err
	}

	return token, nil
}

func ApprovalTokenValidate(token string) (*ApprovalClaim, error) {
	parsed, err := jwt.ParseWithClaims(token, &ApprovalClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	claim, ok := parsed.Claims.(*ApprovalClaim)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid approval token")
	}
	return claim, nil
}
