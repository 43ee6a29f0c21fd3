package email

const (
	subjectQuoteStatusChangedFmt = "Offerte %s is %s"
	subjectClientWelcomeFmt      = "Uw account voor het klantportaal van %s"
)
