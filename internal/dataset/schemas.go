package dataset

import (
	"github.com/atlasgrowth23/lapermits/internal/db"
	n "github.com/atlasgrowth23/lapermits/internal/normalize"
)

// nolaLegacyRules is shared by the two New Orleans CSV exports
func nolaLegacyRules() n.RuleSet {
	money := func(name string) n.FieldRule { return n.Decimal(name, 10, 2) }
	return n.RuleSet{
		n.Text("address"),
		n.Text("owner"),
		n.Text("description"),
		n.Text("numstring"),
		n.Boolean("isclosed"),
		n.Text("type"),
		n.Text("code"),
		n.Text("division"),
		n.Text("m_s"),
		n.Timestamp("filingdate"),
		n.Timestamp("issuedate"),
		n.Text("currentstatus"),
		n.Text("nextstatus"),
		n.Timestamp("currentstatusdate"),
		n.Timestamp("nextstatusdate"),
		n.Text("landuse"),
		n.Text("landuseshort"),
		money("unpaidfees"),
		money("totalfees"),
		money("bldgarea"),
		money("constrval"),
		money("bondamount"),
		money("opencomments"),
		n.Text("applicant"),
		money("totalinspections"),
		n.Text("contractors"),
		n.Text("pin"),
		money("beds"),
		money("baths"),
		money("secondfloo"),
		money("basementar"),
		money("daysopen"),
		money("daysissued"),
		n.Text("leadagency"),
		n.Text("subdivision"),
		n.Text("councildist"),
		n.Text("zoning"),
		n.Text("location_1"),
		n.Text("historicdistrict"),
		n.Text("exitreason"),
		n.Text("projectname"),
		n.Text("heattype"),
	}
}

var nolaLegacyPermits = db.PermitColumns{
	PermitNumber:  "numstring",
	Description:   "description",
	Street:        "address",
	Applied:       "filingdate",
	Issued:        "issuedate",
	StatusDate:    "currentstatusdate",
	Status:        "currentstatus",
	PermitClass:   "landuse",
	PermitType:    "code",
	WorkClass:     "type",
	Contractor:    "contractors",
	EstimatedCost: "constrval",
	Fee:           "totalfees",
}

func bldsRules() n.RuleSet {
	money := func(name string) n.FieldRule { return n.Decimal(name, 15, 2) }
	return n.RuleSet{
		n.Text("permitnum"),
		n.Text("description"),
		n.Timestamp("applieddate"),
		n.Timestamp("issuedate"),
		n.Timestamp("completedate"),
		n.Text("statuscurrent"),
		n.Text("originaladdress1"),
		n.Text("originalcity"),
		n.Text("originalstate"),
		n.Text("originalzip"),
		n.Text("permitclass"),
		n.Text("workclass"),
		n.Text("permittype"),
		n.Text("permittypedesc"),
		n.Timestamp("statusdate"),
		money("totalsqft"),
		n.Text("link"),
		n.Text("location"),
		money("estprojectcost"),
		n.Text("pin"),
		n.Text("contractorcompanyname"),
		n.Text("contractortrade"),
		n.Text("contractortrademapped"),
		n.Text("contractorlicnum"),
		n.Text("contractorstatelic"),
		n.Timestamp("expiresdate"),
		n.Timestamp("coissueddate"),
		n.Text("publisher"),
		money("fee"),
		n.Text("workclassmapped"),
		n.Text("permitclassmapped"),
		n.Text("permittypemapped"),
		n.Text("statuscurrentmapped"),
	}
}

func brRules() n.RuleSet {
	money := func(name string) n.FieldRule { return n.Decimal(name, 12, 2) }
	return n.RuleSet{
		n.Text("permitid"),
		n.Text("permitnumber"),
		n.Text("permittype"),
		n.Text("designation"),
		n.Text("projectdescription"),
		money("squarefootage"),
		money("projectvalue"),
		money("permitfee"),
		n.Timestamp("creationdate"),
		n.Timestamp("issueddate"),
		n.Text("address"),
		n.Text("streetaddress"),
		n.Text("city1"),
		n.Text("state1"),
		n.Text("zip"),
		n.Text("parishname"),
		n.Text("ownername"),
		n.Text("applicantname"),
		n.Text("contractorname"),
		n.Text("contractoraddress"),
		n.Decimal("lat", 15, 10),
		n.Decimal("long", 15, 10),
		n.Text("geolocation"),
		n.Text("lotnumber"),
		n.Text("subdivision"),
	}
}

func init() {
	register(Schema{
		Name:        "nola1",
		Description: "New Orleans permits, first CSV export",
		Table:       "nola_permits",
		Rules:       nolaLegacyRules(),
		Permits:     nolaLegacyPermits,
	})
	register(Schema{
		Name:        "nola2",
		Description: "New Orleans permits, second CSV export",
		Table:       "nola2_permits",
		Rules:       nolaLegacyRules(),
		Permits:     nolaLegacyPermits,
	})
	register(Schema{
		Name:        "blds",
		Description: "New Orleans BLDS permits feed (72f9-bi28)",
		Table:       "nola_permits_72f9_bi28",
		Rules:       bldsRules(),
		Permits: db.PermitColumns{
			PermitNumber:  "permitnum",
			Description:   "description",
			Street:        "originaladdress1",
			City:          "originalcity",
			State:         "originalstate",
			Zip:           "originalzip",
			Applied:       "applieddate",
			Issued:        "issuedate",
			Completed:     "completedate",
			StatusDate:    "statusdate",
			Status:        "statuscurrent",
			PermitClass:   "permitclassmapped",
			PermitType:    "permittype",
			WorkClass:     "workclass",
			Contractor:    "contractorcompanyname",
			EstimatedCost: "estprojectcost",
			Fee:           "fee",
		},
		Feed: &FeedInfo{
			URL:         "https://data.nola.gov/resource/72f9-bi28.json",
			SortKey:     "applieddate",
			DateField:   "applieddate",
			WindowYears: 5,
		},
		CurateExclude: []string{"DEMO", "HVAC", "SOLR", "LOOP"},
	})
	register(Schema{
		Name:        "br",
		Description: "Baton Rouge permits CSV export",
		Table:       "br_permits",
		Rules:       brRules(),
		Permits: db.PermitColumns{
			PermitNumber:  "permitnumber",
			Description:   "projectdescription",
			Street:        "streetaddress",
			City:          "city1",
			State:         "state1",
			Zip:           "zip",
			Applied:       "creationdate",
			Issued:        "issueddate",
			PermitClass:   "designation",
			PermitType:    "permittype",
			Contractor:    "contractorname",
			EstimatedCost: "projectvalue",
			Fee:           "permitfee",
		},
	})
}
