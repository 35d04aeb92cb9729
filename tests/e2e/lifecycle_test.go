package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"tellusnode/internal/cloud"
	"tellusnode/internal/provisioning"
	"tellusnode/internal/registry"
	"tellusnode/internal/server"
	"tellusnode/internal/telemetry"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const offeringTemplate = `{
	"order_id": "%s",
	"virtual_machine_service_offering": {
		"server_flavor": {
			"cpu": {"cores": 2},
			"ram": {"value": 4, "unit": "GByte"},
			"boot_volume": {"value": 20, "unit": "GByte"}
		},
		"ssh_keys": ["ssh-ed25519 AAAA...key material... user@host"]
	}
}`

func offering(orderID string) string {
	return fmt.Sprintf(offeringTemplate, orderID)
}

func seedProvider() *cloud.FakeProvider {
	provider := cloud.NewFakeProvider()
	provider.Session.Images = []cloud.Image{
		{ID: "img-1", Name: "Ubuntu 24.04", MinRAMMegabytes: 2048, MinDiskGigabytes: 10},
	}
	provider.Session.Flavors = []cloud.Flavor{
		{ID: "flv-1", Name: "SCS-2V-4-20"},
		{ID: "flv-2", Name: "SCS-4V-8-40"},
	}
	provider.Session.Networks = []cloud.Network{
		{ID: "net-1", Name: "acme-network"},
	}
	return provider
}

var _ = Describe("VM configuration lifecycle", func() {
	var (
		provider *cloud.FakeProvider
		store    *registry.MemoryStore
		api      *httptest.Server
	)

	BeforeEach(func() {
		provider = seedProvider()
		store = registry.NewMemoryStore()
		controller := provisioning.NewController(store, provider, provisioning.Options{
			ImageName:   "Ubuntu 24.04",
			NamePrefix:  "tellus-vm-",
			NetworkName: "acme-network",
		})
		api = httptest.NewServer(server.NewServer(controller, telemetry.NewMetrics(), "").Handler())
	})

	AfterEach(func() {
		api.Close()
	})

	post := func(path, body string) (*http.Response, map[string]any) {
		resp, err := http.Post(api.URL+path, "application/json", bytes.NewBufferString(body))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var decoded map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
		return resp, decoded
	}

	get := func(path string) (*http.Response, map[string]any) {
		resp, err := http.Get(api.URL + path)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var decoded map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
		return resp, decoded
	}

	del := func(path string) *http.Response {
		req, err := http.NewRequest(http.MethodDelete, api.URL+path, nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		return resp
	}

	Context("Provisioning a VM", func() {
		It("should create, report, and destroy a configuration", func() {
			resp, _ := post("/configurations", offering("order-1"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			By("naming provider resources after the upper-cased key")
			Expect(provider.Session.CreatedServers).To(HaveLen(1))
			Expect(provider.Session.CreatedServers[0].Name).To(Equal("tellus-vm-ORDER-1"))
			Expect(provider.Session.CreatedKeypairs).To(ConsistOf("tellus-vm-ORDER-1"))

			By("reporting the configuration as up with its floating IP")
			resp, body := get("/configurations/order-1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["status"]).To(Equal("up"))
			ips := body["ip_addresses"].([]any)
			Expect(ips).To(HaveLen(1))
			ip := ips[0].(map[string]any)
			Expect(ip["value"]).To(Equal("203.0.113.10"))
			Expect(ip["type"]).To(Equal("ipv4"))
			Expect(ip["prefix"]).To(Equal("32"))

			By("destroying the configuration")
			resp = del("/configurations/order-1")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(provider.Session.Servers).To(BeEmpty())
			Expect(provider.Session.Keypairs).To(BeEmpty())

			resp, _ = get("/configurations/order-1")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should treat keys as case-insensitive", func() {
			resp, _ := post("/configurations", offering("Order-1"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			resp, body := post("/configurations", offering("ORDER-1"))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(ContainSubstring("already exists"))

			resp, _ = get("/configurations/oRdEr-1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject an image the flavor cannot run", func() {
			provider.Session.Images[0].MinRAMMegabytes = 8192

			resp, body := post("/configurations", offering("order-1"))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(Equal("Not enough memory to run the selected image"))
			Expect(provider.Session.CreatedServers).To(BeEmpty())
			Expect(provider.Session.CreatedKeypairs).To(BeEmpty())
		})

		It("should report a missing size class by its derived name", func() {
			provider.Session.Flavors = nil

			resp, body := post("/configurations", offering("order-1"))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(body["error"]).To(Equal("Flavor SCS-2V-4-20 does not exist"))
		})
	})

	Context("Reporting provider state", func() {
		It("should report preparing while the instance is building", func() {
			resp, _ := post("/configurations", offering("order-1"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			provider.Session.Servers[0].Status = cloud.ServerStatusBuilding

			resp, body := get("/configurations/order-1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["status"]).To(Equal("preparing"))
		})

		It("should report down with the raw state for anything else", func() {
			resp, _ := post("/configurations", offering("order-1"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			provider.Session.Servers[0].Status = "ERROR"

			resp, body := get("/configurations/order-1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["status"]).To(Equal("down"))
			Expect(body["error"]).To(Equal("VM is currently in state: ERROR"))
			Expect(body).NotTo(HaveKey("ip_addresses"))
		})

		It("should surface authentication problems as 401", func() {
			resp, _ := post("/configurations", offering("order-1"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			provider.Session.AuthorizeErr = errors.New("token expired")

			resp, body := get("/configurations/order-1")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(body["status"]).To(Equal("down"))
			Expect(body["error"]).To(Equal("There was a problem with authentication"))
		})
	})

	Context("Sweeping orphans", func() {
		It("should remove unregistered servers carrying the prefix", func() {
			resp, _ := post("/configurations", offering("order-1"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			// orphan left behind by a failed create
			provider.Session.Servers = append(provider.Session.Servers, cloud.Server{
				ID: "srv-orphan", Name: "tellus-vm-ORDER-9", Status: "ERROR",
			})

			controller := provisioning.NewController(store, provider, provisioning.Options{
				ImageName:   "Ubuntu 24.04",
				NamePrefix:  "tellus-vm-",
				NetworkName: "acme-network",
			})
			removed, err := controller.Sweep(context.Background(), 2, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(ConsistOf("tellus-vm-ORDER-9"))

			// the registered configuration is still intact
			resp, body := get("/configurations/order-1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["status"]).To(Equal("up"))
		})
	})
})
