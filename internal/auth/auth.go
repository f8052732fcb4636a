package auth

import (
	"errors"
	"fmt"
	"strings"

	apierrors "bibkeys/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/rs/zerolog"
)

const SubjectKey = "subject"

// AuthMiddleware requires an HS256 bearer token signed with secret. An empty
// secret disables the check.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		log := zerolog.Ctx(c.Request.Context())

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apierrors.HandleError(c, apierrors.New401Error())
			return
		}

		bearerToken := strings.Split(authHeader, " ")
		if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
			apierrors.HandleError(c, apierrors.New401Error())
			return
		}

		claims, err := verifyToken(bearerToken[1], secret)
		if err != nil {
			log.Debug().Err(err).Msg("rejected bearer token")
			apierrors.HandleError(c, apierrors.New401Error())
			return
		}

		subject, _ := claims["sub"].(string)
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

func verifyToken(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
