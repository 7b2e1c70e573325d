// Package billing mounts the App Store endpoints: client receipt
// verification, the entitlement lookup and the server notification
// receiver.
//
//	r.Mount("/billing", billing.New(verifier, subs, reconciler,
//	    billing.WithAuth(jwtSvc),
//	    billing.WithSignatureVerifier(jws),
//	).Handle())
package billing
