package ember

// Handler processes a request bound to a Ctx. Whatever a handler's actual
// function signature was at registration time, the Executor adapts it down
// to this shape before the Router ever calls it.
type Handler func(c *Ctx)

// Middleware wraps a Handler; it has the same shape so the two are
// interchangeable at registration. A middleware short-circuits the chain by
// not calling c.Next().
type Middleware func(c *Ctx)

// HandlerResultPolicy post-processes a non-nil value returned by a handler
// function that was bound with a return type (SyncValue/FutureValue per the
// Executor's classification). The default policy JSON-serializes the value
// and sends it.
type HandlerResultPolicy func(c *Ctx, result any)

// defaultHandlerResultPolicy JSON-encodes result and sends it with a 200,
// unless the handler already sent a response itself.
func defaultHandlerResultPolicy(c *Ctx, result any) {
	if c.Response.sent {
		return
	}
	if result == nil {
		return
	}
	if err, ok := result.(error); ok {
		c.Error(err)
		return
	}
	c.Response.JSON(result)
}
