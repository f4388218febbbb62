package identity

import "errors"

// ErrNoSession is returned by a SessionProvider when nobody is signed in.
var ErrNoSession = errors.New("no_session")
