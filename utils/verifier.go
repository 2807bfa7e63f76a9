// utils/verifier.go
package utils

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/badoux/checkmail"
	"github.com/likexian/whois"
)

type VerificationResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"` // valid, invalid, disposable, catch-all, unknown
	Details      string `json:"details"`
	IsReachable  bool   `json:"is_reachable"`
	IsBounceRisk bool   `json:"is_bounce_risk"`
	WHOIS        string `json:"whois,omitempty"`
}

// ContactVerdict is the lightweight answer qualification needs: can we
// realistically contact this address right now.
type ContactVerdict struct {
	Contactable bool   `json:"contactable"`
	Detail      string `json:"detail"`
}

var (
	disposableDomains = loadDisposableDomains()

	// Major free email providers
	freeEmailProviders = []string{
		"gmail.com", "yahoo.com", "outlook.com", "hotmail.com",
		"aol.com", "protonmail.com", "icloud.com", "mail.com",
		"yandex.com", "zoho.com", "gmx.com",
	}

	// Common email typos
	commonTypos = map[string]string{
		"gmai.com":   "gmail.com",
		"gmal.com":   "gmail.com",
		"gmail.co":   "gmail.com",
		"yaho.com":   "yahoo.com",
		"hotmai.com": "hotmail.com",
		"outlok.com": "outlook.com",
	}

	// Domain to MX cache
	mxCache = struct {
		sync.RWMutex
		m map[string][]*net.MX
	}{m: make(map[string][]*net.MX)}

	smtpTimeout = 15 * time.Second
)

// VerifyContactability runs the cheap checks only: syntax, typo, disposable
// domain and MX presence. No SMTP probe, so it is safe to call inline
// during lead qualification.
func VerifyContactability(email string) ContactVerdict {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := checkmail.ValidateFormat(email); err != nil {
		return ContactVerdict{Detail: "invalid email format: " + err.Error()}
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ContactVerdict{Detail: "invalid email format"}
	}
	localPart, domain := parts[0], parts[1]

	if suggestedDomain, ok := commonTypos[domain]; ok {
		return ContactVerdict{Detail: fmt.Sprintf("possible typo, did you mean %s@%s?", localPart, suggestedDomain)}
	}

	if isDisposableDomain(domain) {
		return ContactVerdict{Detail: "disposable email domain"}
	}

	if _, err := getMXRecords(domain); err != nil {
		return ContactVerdict{Detail: "domain has no MX records"}
	}

	return ContactVerdict{Contactable: true, Detail: "mailbox domain accepts mail"}
}

// VerifyEmailAddress performs the full verification pass including the
// SMTP reachability probe and WHOIS enrichment. Used by the verification
// endpoint and CSV import, not the hot qualification path.
func VerifyEmailAddress(email string) (*VerificationResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	result := &VerificationResult{
		Email:        email,
		Status:       "unknown",
		IsReachable:  false,
		IsBounceRisk: true,
	}

	if err := checkmail.ValidateFormat(email); err != nil {
		result.Status = "invalid"
		result.Details = "Invalid email format: " + err.Error()
		return result, nil
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		result.Status = "invalid"
		result.Details = "Invalid email format"
		return result, nil
	}
	localPart, domain := parts[0], parts[1]

	if suggestedDomain, ok := commonTypos[domain]; ok {
		result.Status = "invalid"
		result.Details = fmt.Sprintf("Possible typo, did you mean %s@%s?", localPart, suggestedDomain)
		return result, nil
	}

	if isDisposableDomain(domain) {
		result.Status = "disposable"
		result.Details = "Disposable email domain"
		return result, nil
	}

	if err := checkmail.ValidateHost(domain); err != nil {
		result.Status = "invalid"
		result.Details = "Domain validation failed: " + err.Error()
		return result, nil
	}

	smtpResult, err := verifySMTP(domain, email)
	if err != nil {
		return result, err
	}

	if whoisInfo, err := whois.Whois(domain); err == nil {
		smtpResult.WHOIS = whoisInfo
	}

	return smtpResult, nil
}

// ExtractDomain extracts domain from email address
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func isDisposableDomain(domain string) bool {
	return disposableDomains[domain]
}

func isFreeEmailProvider(domain string) bool {
	for _, provider := range freeEmailProviders {
		if domain == provider {
			return true
		}
	}
	return false
}

func verifySMTP(domain, email string) (*VerificationResult, error) {
	result := &VerificationResult{
		Email:        email,
		Status:       "unknown",
		IsReachable:  false,
		IsBounceRisk: true,
	}

	mxRecords, err := getMXRecords(domain)
	if err != nil || len(mxRecords) == 0 {
		result.Status = "invalid"
		result.Details = "Domain has no MX records"
		return result, nil
	}

	// Try multiple MX servers
	for _, mx := range mxRecords {
		mailServer := strings.TrimSuffix(mx.Host, ".")

		portsToTry := []string{"25", "587", "465"}
		if isFreeEmailProvider(domain) {
			// For free providers, try submission ports first
			portsToTry = []string{"587", "465", "25"}
		}

		for _, port := range portsToTry {
			addr := fmt.Sprintf("%s:%s", mailServer, port)
			smtpResult, err := checkSMTP(addr, domain, email)
			if err == nil {
				return smtpResult, nil
			}
		}
	}

	result.Details = "All verification attempts failed"
	return result, nil
}

func getMXRecords(domain string) ([]*net.MX, error) {
	// Check cache first
	mxCache.RLock()
	if records, ok := mxCache.m[domain]; ok {
		mxCache.RUnlock()
		return records, nil
	}
	mxCache.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resolver net.Resolver
	mxRecords, err := resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, err
	}

	mxCache.Lock()
	mxCache.m[domain] = mxRecords
	mxCache.Unlock()

	return mxRecords, nil
}

func checkSMTP(addr, domain, email string) (*VerificationResult, error) {
	conn, err := net.DialTimeout("tcp", addr, smtpTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, domain)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	// Set timeout for each SMTP command
	deadline := time.Now().Add(smtpTimeout)
	conn.SetDeadline(deadline)

	if err = client.Hello("verify.leadpilot.io"); err != nil {
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "HELO failed: " + err.Error(),
			IsBounceRisk: true,
		}, nil
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err = client.StartTLS(nil); err != nil {
			return &VerificationResult{
				Email:        email,
				Status:       "unknown",
				Details:      "STARTTLS failed: " + err.Error(),
				IsBounceRisk: true,
			}, nil
		}
	}

	if err = client.Mail("noreply@leadpilot.io"); err != nil {
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "MAIL FROM failed: " + err.Error(),
			IsBounceRisk: true,
		}, nil
	}

	// RCPT TO is the key reachability test
	err = client.Rcpt(email)
	if err == nil {
		return &VerificationResult{
			Email:        email,
			Status:       "valid",
			Details:      "Recipient accepted",
			IsReachable:  true,
			IsBounceRisk: false,
		}, nil
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "250"):
		// Some servers return 250 even on failure
		return &VerificationResult{
			Email:        email,
			Status:       "catch-all",
			Details:      "Server accepts all emails (catch-all)",
			IsReachable:  true,
			IsBounceRisk: false,
		}, nil
	case strings.Contains(errMsg, "550"):
		return &VerificationResult{
			Email:        email,
			Status:       "invalid",
			Details:      "Mailbox doesn't exist",
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	case strings.Contains(errMsg, "421"), strings.Contains(errMsg, "450"), strings.Contains(errMsg, "451"):
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "Temporary failure: " + err.Error(),
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	default:
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "SMTP error: " + err.Error(),
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	}
}

func loadDisposableDomains() map[string]bool {
	domains := make(map[string]bool)
	for _, d := range strings.Split(disposableDomainList, "\n") {
		d = strings.TrimSpace(d)
		if d != "" {
			domains[d] = true
		}
	}
	return domains
}

const disposableDomainList = `
mailinator.com
tempmail.org
10minutemail.com
guerrillamail.com
trashmail.com
temp-mail.org
yopmail.com
maildrop.cc
dispostable.com
fakeinbox.com
throwawaymail.com
mailnesia.com
getairmail.com
mytemp.email
temp-mail.io
fake-mail.com
mail-temp.com
tempail.com
tempomail.fr
tempinbox.com
tempmailaddress.com
mailmetrash.com
trashmail.net
discard.email
mailcatch.com
tempemail.net
mintemail.com
notmailinator.com
spamgourmet.com
spamhole.com
spam.la
spamspot.com
spambox.us
spam4.me
sharklasers.com
guerrillamail.net
guerrillamail.org
guerrillamail.biz
guerrillamailblock.com
anonbox.net
bugmenot.com
deadaddress.com
despammed.com
devnullmail.com
discardmail.com
dodgeit.com
dumpyemail.com
emailsensei.com
explodemail.com
harakirimail.com
incognitomail.com
jetable.org
kasmail.com
killmail.com
klzlk.com
kurzepost.de
mailexpire.com
mailnull.com
mailsac.com
meltmail.com
mycleaninbox.net
neverbox.com
no-spam.ws
nospammail.net
oneoffemail.com
pookmail.com
quickinbox.com
rcpt.at
rejectmail.com
selfdestructingmail.com
shitmail.me
slaskpost.se
sneakemail.com
snkmail.com
sofort-mail.de
sogetthis.com
spamavert.com
spambog.com
spamcannon.com
spamex.com
spamfree24.org
spaml.com
tempalias.com
tempe-mail.com
tempmailer.com
temporaryinbox.com
trash-mail.com
trashdevil.com
trashymail.com
wegwerfmail.de
willselfdestruct.com
yopmail.fr
zippymail.info
zoemail.org
`
