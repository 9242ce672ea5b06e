package auth

import "github.com/gin-gonic/gin"

// ContextPrincipal is the gin context key holding the request's Principal.
const ContextPrincipal = "principal"

// SetPrincipal stores p on the request context.
func SetPrincipal(c *gin.Context, p Principal) {
	c.Set(ContextPrincipal, p)
}

// PrincipalFrom returns the principal stored by the session middleware.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
