// Package vrchat is a small client for the VRChat REST API.
//
// # Endpoints
//
//	GET  /auth/user                              login (Basic auth), current user
//	POST /auth/twofactorauth/{method}/verify     second factor (totp, emailotp, otp)
//	GET  /auth/user/friends?offline=&n=&offset=  friends, paged
//	PUT  /logout                                 end the remote session
//
// Authentication state lives in the client's cookie jar. The identifier
// and secret only ever appear in the Authorization header of the first
// request of a login and are not retained.
//
// # Classification
//
// Every failure leaves the package as an *Error carrying a Kind. The
// Classifier looks at, in order: structured flags in the payload
// (requiresTwoFactorAuth, verified), known phrases in the error message,
// then the HTTP status. The service answers both a wrong password and a
// missing second factor with 401 on some accounts; the
// UnauthorizedMeansSecondFactor option picks which reading wins.
//
// Friends polls only ever produce KindThrottled or
// KindTransientPollFailure.
package vrchat
